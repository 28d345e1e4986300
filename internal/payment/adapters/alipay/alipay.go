// Package alipay implements Alipay async notification verification.
// Notifications arrive form-encoded and are signed RSA2 over the
// key-sorted parameter string.
package alipay

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/config"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/appforge/appforge/internal/plan"
)

type Adapter struct {
	publicKey *rsa.PublicKey
	clock     clock.Clock
}

func NewAdapter(cfg config.AlipayConfig, clk clock.Clock) (*Adapter, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(cfg.PublicKeyPEM)))
	if block == nil {
		return nil, paymentdomain.ErrInvalidConfig
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{publicKey: key, clock: clk}, nil
}

func (a *Adapter) Provider() paymentdomain.Provider {
	return paymentdomain.ProviderAlipay
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return paymentdomain.ErrInvalidPayload
	}

	signature, err := base64.StdEncoding.DecodeString(values.Get("sign"))
	if err != nil || len(signature) == 0 {
		return paymentdomain.ErrInvalidSignature
	}
	if values.Get("sign_type") != "RSA2" {
		return paymentdomain.ErrInvalidSignature
	}

	digest := sha256.Sum256([]byte(canonicalString(values)))
	if err := rsa.VerifyPKCS1v15(a.publicKey, crypto.SHA256, digest[:], signature); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Notice, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	tradeStatus := values.Get("trade_status")
	if tradeStatus != "TRADE_SUCCESS" && tradeStatus != "TRADE_FINISHED" {
		return nil, paymentdomain.ErrEventIgnored
	}

	outTradeNo := strings.TrimSpace(values.Get("out_trade_no"))
	if outTradeNo == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount, err := paymentdomain.ParseMinorUnits(values.Get("total_amount"))
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	occurredAt := a.clock.Now().UTC()
	if parsed, err := time.ParseInLocation("2006-01-02 15:04:05", values.Get("gmt_payment"), cstZone); err == nil {
		occurredAt = parsed.UTC()
	}

	return &paymentdomain.Notice{
		Provider:        paymentdomain.ProviderAlipay,
		ProviderOrderID: outTradeNo,
		ProviderTxnID:   values.Get("trade_no"),
		EventType:       tradeStatus,
		PaidAmount:      amount,
		Currency:        plan.CurrencyCNY,
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

// Alipay requires the literal body "success" to stop redelivery; any
// other body, regardless of status code, triggers a retry.
func (a *Adapter) AckSuccess() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte("success"),
	}
}

func (a *Adapter) AckFailure() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte("failure"),
	}
}

// canonicalString joins the decoded parameters sorted by key, with
// sign and sign_type excluded, exactly as the signature was produced.
func canonicalString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "sign" || key == "sign_type" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(values.Get(key))
	}
	return sb.String()
}

// Notification timestamps are in China Standard Time with no offset in
// the payload.
var cstZone = time.FixedZone("CST", 8*3600)
