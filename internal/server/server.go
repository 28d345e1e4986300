// Package server wires the HTTP surface: provider webhooks, checkout,
// the PayPal capture endpoint and read-side account routes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/logger"
	"github.com/appforge/appforge/internal/metrics"
	orderdomain "github.com/appforge/appforge/internal/order/domain"
	"github.com/appforge/appforge/internal/payment/adapters"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	"github.com/appforge/appforge/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))
	r.Use(telemetry.GinMiddleware())
	if m != nil {
		r.Use(m.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	paymentSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	orderRepo       orderdomain.Repository
	registry        *adapters.Registry
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	OrderRepo       orderdomain.Repository
	Registry        *adapters.Registry
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		orderRepo:       p.OrderRepo,
		registry:        p.Registry,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/checkout", s.HandleCreateCheckout)
		v1.POST("/paypal/orders/:order_id/capture", s.HandlePayPalCapture)
		v1.GET("/users/:user_id/subscription", s.HandleGetSubscription)
		v1.GET("/users/:user_id/wallet", s.HandleGetWallet)
		v1.GET("/users/:user_id/orders", s.HandleListOrders)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
