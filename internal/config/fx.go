package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPipelineConfigHolder),
	fx.Provide(func(h *PipelineConfigHolder) PipelineConfig { return h.Get() }),
)
