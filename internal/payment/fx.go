package payment

import (
	"github.com/appforge/appforge/internal/clock"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/payment/adapters"
	"github.com/appforge/appforge/internal/payment/adapters/alipay"
	"github.com/appforge/appforge/internal/payment/adapters/paypal"
	"github.com/appforge/appforge/internal/payment/adapters/stripe"
	"github.com/appforge/appforge/internal/payment/adapters/wechat"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	"github.com/appforge/appforge/internal/payment/repository"
	"github.com/appforge/appforge/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		NewRegistry,
		service.NewService,
	),
)

// NewRegistry constructs adapters for every provider with usable
// config. Unconfigured providers are left out of the registry and
// their webhooks answer provider_not_found.
func NewRegistry(cfg config.Config, clk clock.Clock, log *zap.Logger) *adapters.Registry {
	log = log.Named("payment.adapters")
	var list []paymentdomain.Adapter

	if adapter, err := stripe.NewAdapter(cfg.Stripe, clk); err == nil {
		list = append(list, adapter)
	} else {
		log.Info("stripe adapter disabled", zap.Error(err))
	}
	if adapter, err := wechat.NewAdapter(cfg.Wechat, clk); err == nil {
		list = append(list, adapter)
	} else {
		log.Info("wechat adapter disabled", zap.Error(err))
	}
	if adapter, err := alipay.NewAdapter(cfg.Alipay, clk); err == nil {
		list = append(list, adapter)
	} else {
		log.Info("alipay adapter disabled", zap.Error(err))
	}
	if adapter, err := paypal.NewAdapter(cfg.PayPal, clk); err == nil {
		list = append(list, adapter)
	} else {
		log.Info("paypal adapter disabled", zap.Error(err))
	}

	return adapters.NewRegistry(list...)
}
