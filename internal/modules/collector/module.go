package collector

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	"trade_engine/internal/modules/collector/service"
	"trade_engine/internal/modules/config"
	health "trade_engine/internal/modules/health/service"
	pg "trade_engine/internal/modules/postgres/service"
	cache "trade_engine/internal/modules/pricecache/service"
)

// NewCollector: исчерпанные попытки подписки завершают приложение с кодом 1.
func NewCollector(
	cfg *config.Config,
	repo *pg.Repository,
	client *exchange.Client,
	c *cache.Cache,
	state *health.State,
	sd fx.Shutdowner,
	log *zap.Logger,
) *service.Collector {
	exit := func(code int) {
		if err := sd.Shutdown(fx.ExitCode(code)); err != nil {
			log.Error("shutdown request failed", zap.Error(err))
		}
	}
	return service.New(service.Config{
		Interval:       cfg.Collector.Interval,
		KlineIntervals: cfg.Collector.KlineIntervals,
		MaxFailures:    cfg.Collector.MaxFailures,
		QueueCapacity:  cfg.Collector.QueueCapacity,
		TickerWorkers:  cfg.Collector.TickerWorkers,
		KlineWorkers:   cfg.Collector.KlineWorkers,
		BookWorkers:    cfg.Collector.BookWorkers,
		DrainWait:      cfg.Collector.DrainWait,
	}, repo, client, c, state, exit, log)
}

func Module() fx.Option {
	return fx.Module("collector",
		fx.Provide(NewCollector),
	)
}
