package exchange

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	"trade_engine/internal/modules/config"
)

func NewClient(cfg *config.Config, log *zap.Logger) *exchange.Client {
	return exchange.New(exchange.Config{
		APIKey:            cfg.Exchange.APIKey,
		APISecret:         cfg.Exchange.APISecret,
		RestURL:           cfg.Exchange.RestURL,
		StreamURL:         cfg.Exchange.StreamURL,
		RecvWindow:        cfg.Exchange.RecvWindow,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
		Burst:             cfg.Exchange.Burst,
		BreakerFailures:   cfg.Exchange.BreakerFailures,
		BreakerTimeout:    cfg.Exchange.BreakerTimeout,
	}, log)
}

// Module: шлюз биржи, REST и общий поток.
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(NewClient),
	)
}
