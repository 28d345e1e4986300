// Package paypal implements the pull-based PayPal flow: the client
// approves an order in the browser and the backend captures it over
// the REST API, trusting the capture response rather than a webhook.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/config"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/appforge/appforge/internal/plan"
)

type Adapter struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	clock        clock.Clock
}

func NewAdapter(cfg config.PayPalConfig, clk clock.Clock) (*Adapter, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	timeout := cfg.CaptureTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		clock:        clk,
	}, nil
}

func (a *Adapter) Provider() paymentdomain.Provider {
	return paymentdomain.ProviderPayPal
}

// Verify rejects inbound webhooks. PayPal state only enters through
// Capture, so nothing posted to the webhook endpoint is trusted.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return paymentdomain.ErrCaptureUnsupported
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Notice, error) {
	return nil, paymentdomain.ErrCaptureUnsupported
}

func (a *Adapter) AckSuccess() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"status":"ok"}`),
	}
}

func (a *Adapter) AckFailure() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusBadRequest,
		ContentType: "application/json",
		Body:        []byte(`{"status":"failed"}`),
	}
}

// Capture finalizes an approved order and converts the capture result
// into the canonical notice.
func (a *Adapter) Capture(ctx context.Context, providerOrderID string) (*paymentdomain.Notice, error) {
	url := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", a.baseURL, providerOrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	res, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrCaptureFailed, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrCaptureFailed, err)
	}
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrCaptureFailed, res.StatusCode)
	}

	var order captureResponse
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrCaptureFailed, err)
	}
	if order.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: order status %s", paymentdomain.ErrCaptureFailed, order.Status)
	}

	capture, ok := order.firstCapture()
	if !ok || capture.Status != "COMPLETED" {
		return nil, paymentdomain.ErrCaptureFailed
	}

	amount, err := paymentdomain.ParseMinorUnits(capture.Amount.Value)
	if err != nil {
		return nil, err
	}
	currency, err := plan.ParseCurrency(capture.Amount.CurrencyCode)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.Notice{
		Provider:        paymentdomain.ProviderPayPal,
		ProviderOrderID: providerOrderID,
		ProviderTxnID:   capture.ID,
		EventType:       "CHECKOUT.ORDER.COMPLETED",
		PaidAmount:      amount,
		Currency:        currency,
		OccurredAt:      a.clock.Now(),
		RawPayload:      body,
	}, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []captureDetail `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type captureDetail struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
}

func (r captureResponse) firstCapture() (captureDetail, bool) {
	for _, unit := range r.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			return unit.Payments.Captures[0], true
		}
	}
	return captureDetail{}, false
}
