package pipeline

import (
	"github.com/smallbiznis/retaillens/internal/pipeline/repository"
	"github.com/smallbiznis/retaillens/internal/pipeline/service"
	"github.com/smallbiznis/retaillens/pkg/telemetry"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline.service",
	fx.Provide(repository.Provide),
	fx.Provide(telemetry.NewPusher),
	fx.Provide(service.New),
)
