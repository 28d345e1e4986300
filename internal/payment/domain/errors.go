package domain

import "errors"

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_provider_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrRecordNotFound        = errors.New("payment_record_not_found")
	ErrAmountMismatch        = errors.New("amount_mismatch")
	ErrCaptureFailed         = errors.New("capture_failed")
	ErrCaptureUnsupported    = errors.New("capture_unsupported")
)
