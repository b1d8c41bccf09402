package bootstrap

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

func NewLogger(lc fx.Lifecycle, cfg logger.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// stderr/stdout на sync отвечают EINVAL, это не ошибка
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

// NewTracer ставит глобальный трейсер; при выключенном трейсинге это noop.
func NewTracer(lc fx.Lifecycle, cfg tracing.Config, log *zap.Logger) (opentracing.Tracer, error) {
	tracer, closer, err := tracing.InitTracer(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return tracer, nil
}

// FxLogger: события самого fx пишутся тем же zap.
func FxLogger(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
}

// Module: логгер и трейсер процесса.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewLogger,
			NewTracer,
		),
		// трейсер нужен до первых span'ов
		fx.Invoke(func(opentracing.Tracer) {}),
	)
}
