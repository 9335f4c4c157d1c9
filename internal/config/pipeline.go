package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PipelineConfig controls the cleaning and load stages.
type PipelineConfig struct {
	InputPath        string        `mapstructure:"inputPath"`
	Sheet            string        `mapstructure:"sheet"`
	CleanedPath      string        `mapstructure:"cleanedPath"`
	IQRMultiplier    float64       `mapstructure:"iqrMultiplier"`
	UnknownCountry   string        `mapstructure:"unknownCountry"`
	BatchSize        int           `mapstructure:"batchSize"`
	TimestampLayouts []string      `mapstructure:"timestampLayouts"`
	WatchDebounce    time.Duration `mapstructure:"watchDebounce"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		InputPath:      "data/online_retail.xlsx",
		CleanedPath:    "data/cleaned_data.csv",
		IQRMultiplier:  1.5,
		UnknownCountry: "Unknown",
		BatchSize:      500,
		TimestampLayouts: []string{
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"1/2/2006 15:04",
			"1/2/06 15:04",
			time.RFC3339,
		},
		WatchDebounce: 2 * time.Second,
	}
}

type PipelineConfigHolder struct {
	v       *viper.Viper
	current atomic.Value // holds PipelineConfig
}

func NewPipelineConfigHolder() (*PipelineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pipeline")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/retaillens")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RETAILLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPipelineConfig()
	v.SetDefault("pipeline.inputPath", defaults.InputPath)
	v.SetDefault("pipeline.sheet", defaults.Sheet)
	v.SetDefault("pipeline.cleanedPath", defaults.CleanedPath)
	v.SetDefault("pipeline.iqrMultiplier", defaults.IQRMultiplier)
	v.SetDefault("pipeline.unknownCountry", defaults.UnknownCountry)
	v.SetDefault("pipeline.batchSize", defaults.BatchSize)
	v.SetDefault("pipeline.timestampLayouts", defaults.TimestampLayouts)
	v.SetDefault("pipeline.watchDebounce", defaults.WatchDebounce)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no pipeline.yml, defaults apply
	}

	cfg, err := decodePipeline(v)
	if err != nil {
		return nil, err
	}

	holder := &PipelineConfigHolder{v: v}
	holder.current.Store(cfg)
	return holder, nil
}

// Watch reloads pipeline.yml on change. Invalid updates are ignored.
func (h *PipelineConfigHolder) Watch(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	h.v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePipeline(h.v)
		if err != nil {
			log.Warn("pipeline config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		h.current.Store(updated)
		log.Info("pipeline config reloaded", zap.String("file", e.Name))
	})
	h.v.WatchConfig()
}

func (h *PipelineConfigHolder) Get() PipelineConfig {
	return h.current.Load().(PipelineConfig)
}

func decodePipeline(v *viper.Viper) (PipelineConfig, error) {
	var cfg PipelineConfig
	if err := v.UnmarshalKey("pipeline", &cfg); err != nil {
		return PipelineConfig{}, err
	}
	if err := ValidatePipelineConfig(cfg); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}

func ValidatePipelineConfig(cfg PipelineConfig) error {
	if strings.TrimSpace(cfg.CleanedPath) == "" {
		return errors.New("pipeline.cleanedPath cannot be empty")
	}
	if cfg.IQRMultiplier <= 0 {
		return errors.New("pipeline.iqrMultiplier must be positive")
	}
	if strings.TrimSpace(cfg.UnknownCountry) == "" {
		return errors.New("pipeline.unknownCountry cannot be empty")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("pipeline.batchSize must be positive")
	}
	if len(cfg.TimestampLayouts) == 0 {
		return errors.New("pipeline.timestampLayouts cannot be empty")
	}
	return nil
}
