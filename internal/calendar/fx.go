package calendar

import (
	"github.com/smallbiznis/retaillens/internal/calendar/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("calendar.repository",
	fx.Provide(repository.Provide),
)
