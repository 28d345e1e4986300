// Package wechat implements WeChat Pay APIv3 notification verification
// and decryption.
package wechat

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
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
	apiV3Key  []byte
	publicKey *rsa.PublicKey
	tolerance time.Duration
	clock     clock.Clock
}

func NewAdapter(cfg config.WechatConfig, clk clock.Clock) (*Adapter, error) {
	key := strings.TrimSpace(cfg.APIv3Key)
	if len(key) != 32 {
		return nil, paymentdomain.ErrInvalidConfig
	}
	publicKey, err := parsePublicKey(cfg.PlatformCertPEM)
	if err != nil {
		return nil, err
	}
	tolerance := cfg.SignatureTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Adapter{
		apiV3Key:  []byte(key),
		publicKey: publicKey,
		tolerance: tolerance,
		clock:     clk,
	}, nil
}

func (a *Adapter) Provider() paymentdomain.Provider {
	return paymentdomain.ProviderWechat
}

// Verify checks the platform signature over "timestamp\nnonce\nbody\n"
// as defined by the APIv3 notification contract.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	timestampRaw := strings.TrimSpace(headers.Get("Wechatpay-Timestamp"))
	nonce := strings.TrimSpace(headers.Get("Wechatpay-Nonce"))
	signatureRaw := strings.TrimSpace(headers.Get("Wechatpay-Signature"))
	if timestampRaw == "" || nonce == "" || signatureRaw == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	skew := a.clock.Now().Sub(time.Unix(timestamp, 0))
	if skew > a.tolerance || skew < -a.tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signature, err := base64.StdEncoding.DecodeString(signatureRaw)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	message := timestampRaw + "\n" + nonce + "\n" + string(payload) + "\n"
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(a.publicKey, crypto.SHA256, digest[:], signature); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Notice, error) {
	var event notifyEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.EventType) != "TRANSACTION.SUCCESS" {
		return nil, paymentdomain.ErrEventIgnored
	}

	plaintext, err := a.decryptResource(event.Resource)
	if err != nil {
		return nil, err
	}

	var txn transaction
	if err := json.Unmarshal(plaintext, &txn); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if txn.TradeState != "SUCCESS" {
		return nil, paymentdomain.ErrEventIgnored
	}
	if strings.TrimSpace(txn.OutTradeNo) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if txn.Amount.Total <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	occurredAt := a.clock.Now()
	if parsed, err := time.Parse(time.RFC3339, txn.SuccessTime); err == nil {
		occurredAt = parsed.UTC()
	}

	return &paymentdomain.Notice{
		Provider:        paymentdomain.ProviderWechat,
		ProviderOrderID: txn.OutTradeNo,
		ProviderTxnID:   txn.TransactionID,
		EventType:       event.EventType,
		PaidAmount:      txn.Amount.Total,
		Currency:        plan.CurrencyCNY,
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) AckSuccess() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"code":"SUCCESS","message":"OK"}`),
	}
}

func (a *Adapter) AckFailure() paymentdomain.Ack {
	return paymentdomain.Ack{
		Status:      http.StatusInternalServerError,
		ContentType: "application/json",
		Body:        []byte(`{"code":"FAIL","message":"processing failed"}`),
	}
}

// decryptResource opens the AES-256-GCM envelope around the actual
// transaction object using the merchant APIv3 key.
func (a *Adapter) decryptResource(res resource) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(res.Ciphertext)
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	block, err := aes.NewCipher(a.apiV3Key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(res.Nonce) != gcm.NonceSize() {
		return nil, paymentdomain.ErrInvalidPayload
	}

	plaintext, err := gcm.Open(nil, []byte(res.Nonce), ciphertext, []byte(res.AssociatedData))
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return plaintext, nil
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	// The platform key ships either as an X.509 certificate or as a
	// bare PKIX public key depending on how it was exported.
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if key, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return key, nil
		}
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
	return key, nil
}

type notifyEvent struct {
	ID        string   `json:"id"`
	EventType string   `json:"event_type"`
	Resource  resource `json:"resource"`
}

type resource struct {
	Algorithm      string `json:"algorithm"`
	Ciphertext     string `json:"ciphertext"`
	Nonce          string `json:"nonce"`
	AssociatedData string `json:"associated_data"`
}

type transaction struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	SuccessTime   string `json:"success_time"`
	Amount        struct {
		Total int64 `json:"total"`
	} `json:"amount"`
}
