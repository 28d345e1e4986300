package domain

import (
	"context"
	"net/http"
)

// Ack is the provider-specific acknowledgement body a webhook handler
// must return. Providers disagree on shape: Alipay wants a literal text
// body, the rest accept JSON.
type Ack struct {
	Status      int
	ContentType string
	Body        []byte
}

// Adapter verifies and parses one provider's webhook notifications.
type Adapter interface {
	Provider() Provider
	// Verify authenticates the raw request before anything is parsed.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse extracts the canonical notice. Events that carry no
	// payment-completed semantics return ErrEventIgnored.
	Parse(ctx context.Context, payload []byte) (*Notice, error)
	AckSuccess() Ack
	AckFailure() Ack
}

// CaptureAdapter is implemented by providers whose flow is pull-based:
// the client returns an approved order and the backend captures it,
// trusting the capture response instead of a signed webhook.
type CaptureAdapter interface {
	Capture(ctx context.Context, providerOrderID string) (*Notice, error)
}
