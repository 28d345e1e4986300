package plan

import "go.uber.org/fx"

// Module provides the plan catalog.
var Module = fx.Module("plan.catalog",
	fx.Provide(NewCatalog),
)
