package warehouse

import (
	"github.com/smallbiznis/retaillens/internal/calendar"
	"github.com/smallbiznis/retaillens/internal/customer"
	"github.com/smallbiznis/retaillens/internal/product"
	"github.com/smallbiznis/retaillens/internal/sales"
	"github.com/smallbiznis/retaillens/internal/warehouse/service"
	"go.uber.org/fx"
)

var Module = fx.Module("warehouse.service",
	customer.Module,
	product.Module,
	calendar.Module,
	sales.Module,
	fx.Provide(service.New),
)
