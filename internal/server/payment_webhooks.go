package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlePaymentWebhook ingests one provider notification and answers
// with the provider's expected acknowledgement shape. Alipay in
// particular requires the literal text body "success".
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("provider"))
	provider, err := paymentdomain.ParseProvider(raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	adapter, err := s.registry.Get(provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		writeAck(c, adapter.AckFailure())
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), raw, payload, c.Request.Header)
	switch {
	case err == nil, errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		writeAck(c, adapter.AckSuccess())
	case errors.Is(err, paymentdomain.ErrRecordNotFound):
		// Acknowledge so the provider stops retrying a notification
		// this system can never match; the orphan is already logged
		// for operators.
		writeAck(c, adapter.AckSuccess())
	default:
		s.log.Warn("webhook processing failed",
			zap.String("provider", string(provider)),
			zap.Error(err))
		writeAck(c, adapter.AckFailure())
	}
}

func writeAck(c *gin.Context, ack paymentdomain.Ack) {
	status := ack.Status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := ack.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(status, contentType, ack.Body)
}
