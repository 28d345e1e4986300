package subscription

import (
	"github.com/appforge/appforge/internal/subscription/repository"
	"github.com/appforge/appforge/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
