package sales

import (
	"github.com/smallbiznis/retaillens/internal/sales/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("sales.repository",
	fx.Provide(repository.Provide),
)
