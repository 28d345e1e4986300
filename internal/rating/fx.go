package rating

import (
	"github.com/appforge/appforge/internal/rating/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rating",
	fx.Provide(service.NewCalculator),
)
