package migration

import (
	"github.com/appforge/appforge/internal/analytics"
	"github.com/appforge/appforge/internal/config"
	orderdomain "github.com/appforge/appforge/internal/order/domain"
	paymentdomain "github.com/appforge/appforge/internal/payment/domain"
	subscriptiondomain "github.com/appforge/appforge/internal/subscription/domain"
	walletdomain "github.com/appforge/appforge/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations target postgres. Other dialects are
		// dev/test setups and get the schema from the models directly.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&paymentdomain.PaymentRecord{},
				&paymentdomain.WebhookEvent{},
				&subscriptiondomain.Subscription{},
				&walletdomain.Wallet{},
				&orderdomain.Order{},
				&analytics.Event{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
