// Package stripe implements webhook verification and parsing for
// Stripe Checkout notifications.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/config"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/appforge/appforge/internal/plan"
)

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	clock         clock.Clock
}

func NewAdapter(cfg config.StripeConfig, clk clock.Clock) (*Adapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	tolerance := cfg.SignatureTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Adapter{
		webhookSecret: secret,
		tolerance:     tolerance,
		clock:         clk,
	}, nil
}

func (a *Adapter) Provider() paymentdomain.Provider {
	return paymentdomain.ProviderStripe
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	skew := a.clock.Now().Sub(time.Unix(timestamp, 0))
	if skew > a.tolerance || skew < -a.tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Notice, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Type) != "checkout.session.completed" {
		return nil, paymentdomain.ErrEventIgnored
	}

	var session stripeSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	// Async payment methods fire checkout.session.completed before the
	// charge clears; only a paid session settles the order.
	if session.PaymentStatus != "paid" {
		return nil, paymentdomain.ErrEventIgnored
	}
	if session.AmountTotal <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	currency, err := plan.ParseCurrency(session.Currency)
	if err != nil {
		return nil, err
	}

	occurredAt := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurredAt = a.clock.Now()
	}

	return &paymentdomain.Notice{
		Provider:        paymentdomain.ProviderStripe,
		ProviderOrderID: session.ID,
		ProviderTxnID:   session.PaymentIntent,
		EventType:       event.Type,
		PaidAmount:      session.AmountTotal,
		Currency:        currency,
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) AckSuccess() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"received":true}`),
	}
}

func (a *Adapter) AckFailure() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusBadRequest,
		ContentType: "application/json",
		Body:        []byte(`{"received":false}`),
	}
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, err
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, errors.New("malformed_signature_header")
	}
	return timestamp, signatures, nil
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeSession struct {
	ID            string `json:"id"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}
