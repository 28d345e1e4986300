package wechat

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/config"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/appforge/appforge/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIv3Key = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	adapter *Adapter
	key     *rsa.PrivateKey
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	now := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	adapter, err := NewAdapter(config.WechatConfig{
		APIv3Key:           testAPIv3Key,
		PlatformCertPEM:    string(pemData),
		SignatureTolerance: 5 * time.Minute,
	}, clock.NewFakeClock(now))
	require.NoError(t, err)

	return &testEnv{adapter: adapter, key: key, now: now}
}

func (e *testEnv) signedHeaders(t *testing.T, payload []byte, at time.Time) http.Header {
	t.Helper()

	timestamp := strconv.FormatInt(at.Unix(), 10)
	nonce := "test-nonce"
	digest := sha256.Sum256([]byte(timestamp + "\n" + nonce + "\n" + string(payload) + "\n"))
	signature, err := rsa.SignPKCS1v15(rand.Reader, e.key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("Wechatpay-Timestamp", timestamp)
	headers.Set("Wechatpay-Nonce", nonce)
	headers.Set("Wechatpay-Signature", base64.StdEncoding.EncodeToString(signature))
	return headers
}

func encryptResource(t *testing.T, plaintext []byte) resource {
	t.Helper()

	block, err := aes.NewCipher([]byte(testAPIv3Key))
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := "abcdef012345"
	ciphertext := gcm.Seal(nil, []byte(nonce), plaintext, []byte("transaction"))
	return resource{
		Algorithm:      "AEAD_AES_256_GCM",
		Ciphertext:     base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:          nonce,
		AssociatedData: "transaction",
	}
}

func notifyPayload(t *testing.T, eventType string, txn transaction) []byte {
	t.Helper()

	inner, err := json.Marshal(txn)
	require.NoError(t, err)
	payload, err := json.Marshal(notifyEvent{
		ID:        "notify-1",
		EventType: eventType,
		Resource:  encryptResource(t, inner),
	})
	require.NoError(t, err)
	return payload
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	env := newTestEnv(t)

	payload := []byte(`{"id":"notify-1"}`)
	headers := env.signedHeaders(t, payload, env.now)

	assert.NoError(t, env.adapter.Verify(context.Background(), payload, headers))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	env := newTestEnv(t)

	headers := env.signedHeaders(t, []byte(`{"id":"notify-1"}`), env.now)

	assert.ErrorIs(t,
		env.adapter.Verify(context.Background(), []byte(`{"id":"notify-2"}`), headers),
		paymentdomain.ErrInvalidSignature)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	env := newTestEnv(t)

	payload := []byte(`{"id":"notify-1"}`)
	headers := env.signedHeaders(t, payload, env.now.Add(-10*time.Minute))

	assert.ErrorIs(t,
		env.adapter.Verify(context.Background(), payload, headers),
		paymentdomain.ErrInvalidSignature)
}

func TestParseSuccessfulTransaction(t *testing.T) {
	env := newTestEnv(t)

	txn := transaction{
		OutTradeNo:    "AF1234567890",
		TransactionID: "4200001234",
		TradeState:    "SUCCESS",
		SuccessTime:   "2024-06-01T17:59:00+08:00",
	}
	txn.Amount.Total = 6800

	notice, err := env.adapter.Parse(context.Background(), notifyPayload(t, "TRANSACTION.SUCCESS", txn))
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.ProviderWechat, notice.Provider)
	assert.Equal(t, "AF1234567890", notice.ProviderOrderID)
	assert.Equal(t, "4200001234", notice.ProviderTxnID)
	assert.Equal(t, int64(6800), notice.PaidAmount)
	assert.Equal(t, plan.CurrencyCNY, notice.Currency)
}

func TestParseIgnoresNonSuccessEvent(t *testing.T) {
	env := newTestEnv(t)

	txn := transaction{OutTradeNo: "AF1", TradeState: "CLOSED"}
	_, err := env.adapter.Parse(context.Background(), notifyPayload(t, "TRANSACTION.CLOSED", txn))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseIgnoresNonSuccessTradeState(t *testing.T) {
	env := newTestEnv(t)

	txn := transaction{OutTradeNo: "AF1", TradeState: "NOTPAY"}
	txn.Amount.Total = 6800
	_, err := env.adapter.Parse(context.Background(), notifyPayload(t, "TRANSACTION.SUCCESS", txn))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParseRejectsGarbledCiphertext(t *testing.T) {
	env := newTestEnv(t)

	payload, err := json.Marshal(notifyEvent{
		ID:        "notify-1",
		EventType: "TRANSACTION.SUCCESS",
		Resource: resource{
			Ciphertext:     base64.StdEncoding.EncodeToString([]byte("not-a-ciphertext")),
			Nonce:          "abcdef012345",
			AssociatedData: "transaction",
		},
	})
	require.NoError(t, err)

	_, err = env.adapter.Parse(context.Background(), payload)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
