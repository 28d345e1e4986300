package domain

import (
	"context"
	"net/http"
	"time"
)

// CheckoutRequest starts a payment: the quote is computed and a PENDING
// record is written before the user is sent to the provider.
type CheckoutRequest struct {
	UserID   string `json:"user_id"`
	Plan     string `json:"plan"`
	Period   string `json:"period"`
	Currency string `json:"currency"`
	Provider string `json:"provider"`
	// ProviderOrderID is supplied when the provider generated the id
	// client-side (Stripe session, PayPal order). Left empty for
	// out_trade_no style providers; the backend generates one.
	ProviderOrderID string `json:"provider_order_id,omitempty"`
}

type CheckoutResponse struct {
	ProviderOrderID string    `json:"provider_order_id"`
	Kind            string    `json:"kind"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Days            int       `json:"days"`
	BonusDays       int       `json:"bonus_days,omitempty"`
	ExpiresAt       time.Time `json:"quote_expires_at"`
}

type Service interface {
	// IngestWebhook runs the full pipeline: verify, parse, dedupe,
	// match, apply, mark processed.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	// CapturePayPal captures an approved PayPal order and feeds the
	// capture result through the same pipeline as a webhook notice.
	CapturePayPal(ctx context.Context, providerOrderID string) error
}
