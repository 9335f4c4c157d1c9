package forecast

import (
	"github.com/smallbiznis/retaillens/internal/forecast/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("forecast.repository",
	fx.Provide(repository.Provide),
)
