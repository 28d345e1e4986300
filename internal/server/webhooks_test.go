package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/appforge/appforge/internal/payment/adapters"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPaymentService struct {
	ingestErr   error
	checkoutRes *paymentdomain.CheckoutResponse
	checkoutErr error
	captureErr  error

	lastProvider string
	lastPayload  []byte
}

func (s *stubPaymentService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	s.lastProvider = provider
	s.lastPayload = payload
	return s.ingestErr
}

func (s *stubPaymentService) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResponse, error) {
	return s.checkoutRes, s.checkoutErr
}

func (s *stubPaymentService) CapturePayPal(ctx context.Context, providerOrderID string) error {
	return s.captureErr
}

type textAckAdapter struct {
	provider paymentdomain.Provider
}

func (a textAckAdapter) Provider() paymentdomain.Provider { return a.provider }

func (a textAckAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (a textAckAdapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Notice, error) {
	return nil, paymentdomain.ErrEventIgnored
}

func (a textAckAdapter) AckSuccess() paymentdomain.Ack {
	return paymentdomain.Ack{Status: http.StatusOK, ContentType: "text/plain", Body: []byte("success")}
}

func (a textAckAdapter) AckFailure() paymentdomain.Ack {
	return paymentdomain.Ack{Status: http.StatusOK, ContentType: "text/plain", Body: []byte("failure")}
}

type jsonAckAdapter struct {
	provider paymentdomain.Provider
}

func (a jsonAckAdapter) Provider() paymentdomain.Provider { return a.provider }

func (a jsonAckAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (a jsonAckAdapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Notice, error) {
	return nil, paymentdomain.ErrEventIgnored
}

func (a jsonAckAdapter) AckSuccess() paymentdomain.Ack {
	return paymentdomain.Ack{Status: http.StatusOK, ContentType: "application/json", Body: []byte(`{"received":true}`)}
}

func (a jsonAckAdapter) AckFailure() paymentdomain.Ack {
	return paymentdomain.Ack{Status: http.StatusBadRequest, ContentType: "application/json", Body: []byte(`{"received":false}`)}
}

func newTestServer(t *testing.T, paymentSvc paymentdomain.Service, registry *adapters.Registry) *Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	s := &Server{
		engine:     engine,
		log:        zap.NewNop(),
		paymentSvc: paymentSvc,
		registry:   registry,
	}
	s.registerRoutes()
	return s
}

func performWebhook(s *Server, provider, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestWebhookAckLiteralTextOnSuccess(t *testing.T) {
	stub := &stubPaymentService{}
	registry := adapters.NewRegistry(textAckAdapter{provider: paymentdomain.ProviderAlipay})
	s := newTestServer(t, stub, registry)

	w := performWebhook(s, "alipay", "out_trade_no=AF1&trade_status=TRADE_SUCCESS")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "success", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	require.Equal(t, "alipay", stub.lastProvider)
}

func TestWebhookReplayStillAcked(t *testing.T) {
	stub := &stubPaymentService{ingestErr: paymentdomain.ErrEventAlreadyProcessed}
	registry := adapters.NewRegistry(textAckAdapter{provider: paymentdomain.ProviderAlipay})
	s := newTestServer(t, stub, registry)

	w := performWebhook(s, "alipay", "out_trade_no=AF1")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "success", w.Body.String())
}

func TestWebhookOrphanNoticeAcked(t *testing.T) {
	stub := &stubPaymentService{ingestErr: paymentdomain.ErrRecordNotFound}
	registry := adapters.NewRegistry(jsonAckAdapter{provider: paymentdomain.ProviderStripe})
	s := newTestServer(t, stub, registry)

	w := performWebhook(s, "stripe", `{"id":"evt_1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"received":true}`, w.Body.String())
}

func TestWebhookFailureUsesProviderFailureShape(t *testing.T) {
	stub := &stubPaymentService{ingestErr: paymentdomain.ErrInvalidSignature}
	registry := adapters.NewRegistry(
		textAckAdapter{provider: paymentdomain.ProviderAlipay},
		jsonAckAdapter{provider: paymentdomain.ProviderStripe},
	)
	s := newTestServer(t, stub, registry)

	w := performWebhook(s, "alipay", "out_trade_no=AF1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "failure", w.Body.String())

	w = performWebhook(s, "stripe", `{"id":"evt_1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"received":false}`, w.Body.String())
}

func TestWebhookUnknownProvider(t *testing.T) {
	stub := &stubPaymentService{}
	s := newTestServer(t, stub, adapters.NewRegistry())

	w := performWebhook(s, "square", "{}")

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request")
	require.Empty(t, stub.lastProvider)
}

func TestWebhookUnconfiguredProvider(t *testing.T) {
	stub := &stubPaymentService{}
	registry := adapters.NewRegistry(textAckAdapter{provider: paymentdomain.ProviderAlipay})
	s := newTestServer(t, stub, registry)

	w := performWebhook(s, "stripe", "{}")

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not_found")
}

func TestCreateCheckoutValidation(t *testing.T) {
	stub := &stubPaymentService{}
	s := newTestServer(t, stub, adapters.NewRegistry())

	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", strings.NewReader(`{"plan":"pro"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "user_id")
}

func TestCreateCheckout(t *testing.T) {
	stub := &stubPaymentService{
		checkoutRes: &paymentdomain.CheckoutResponse{
			ProviderOrderID: "AF1001",
			Kind:            "purchase",
			Amount:          999,
			Currency:        "USD",
			Days:            30,
		},
	}
	s := newTestServer(t, stub, adapters.NewRegistry())

	body := `{"user_id":"u-1","plan":"pro","period":"monthly","currency":"USD","provider":"stripe"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), "AF1001")
}

func TestPayPalCapture(t *testing.T) {
	stub := &stubPaymentService{}
	s := newTestServer(t, stub, adapters.NewRegistry())

	req := httptest.NewRequest(http.MethodPost, "/v1/paypal/orders/5O190127TN364715T/capture", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	stub.captureErr = paymentdomain.ErrCaptureFailed
	req = httptest.NewRequest(http.MethodPost, "/v1/paypal/orders/5O190127TN364715T/capture", nil)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
