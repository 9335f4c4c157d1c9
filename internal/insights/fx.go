package insights

import (
	"github.com/smallbiznis/retaillens/internal/insights/service"
	"go.uber.org/fx"
)

var Module = fx.Module("insights.service",
	fx.Provide(service.New),
)
