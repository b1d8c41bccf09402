package pricecache

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	"trade_engine/internal/modules/config"
	pg "trade_engine/internal/modules/postgres/service"
	"trade_engine/internal/modules/pricecache/service"
)

func NewCache(cfg *config.Config, repo *pg.Repository, client *exchange.Client, log *zap.Logger) *service.Cache {
	return service.New(service.Config{
		RollingSize:          cfg.Cache.RollingSize,
		Staleness:            cfg.Cache.Staleness,
		ExchangeInfoInterval: cfg.Cache.ExchangeInfoInterval,
	}, repo, client, log)
}

// Module: кэш цен и статистики. Запуском управляет engine.
func Module() fx.Option {
	return fx.Module("price_cache",
		fx.Provide(NewCache),
	)
}
