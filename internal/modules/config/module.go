package config

import (
	"go.uber.org/fx"

	"trade_engine/internal/strategy"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

// Module: конфиг и его срезы для модулей, которым весь Config не нужен.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			func(c *Config) logger.Config { return c.Log },
			func(c *Config) tracing.Config { return c.Tracing },
			func(c *Config) strategy.Thresholds { return c.Thresholds },
		),
	)
}
