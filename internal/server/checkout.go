package server

import (
	"net/http"
	"strings"

	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandleCreateCheckout(c *gin.Context) {
	var req paymentdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}

	res, err := s.paymentSvc.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (s *Server) HandlePayPalCapture(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	if orderID == "" {
		AbortWithError(c, newValidationError("order_id", "required", "order_id is required"))
		return
	}

	if err := s.paymentSvc.CapturePayPal(c.Request.Context(), orderID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
