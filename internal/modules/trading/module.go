package trading

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	account "trade_engine/internal/modules/accountant/service"
	"trade_engine/internal/modules/config"
	pg "trade_engine/internal/modules/postgres/service"
	cache "trade_engine/internal/modules/pricecache/service"
	"trade_engine/internal/modules/trading/service"
	"trade_engine/internal/notify"
	"trade_engine/internal/strategy"
	"trade_engine/pkg/idgen"
)

type teamDeps struct {
	fx.In

	Cfg        *config.Config
	Repo       *pg.Repository
	Cache      *cache.Cache
	Accountant *account.Accountant
	Client     *exchange.Client
	IDs        idgen.Generator
	Locks      *service.Locks
	Thresholds strategy.Thresholds
	Log        *zap.Logger
}

func NewIDs(cfg *config.Config) (idgen.Generator, error) {
	return idgen.NewSnowflake(cfg.Exchange.NodeID)
}

// NewTeam: на каждый символ аналитик и подписанный на него брокер.
func NewTeam(d teamDeps) *service.Team {
	heuristic := strategy.NewHeuristic(d.Thresholds)
	brokerCfg := service.BrokerConfig{
		SpendPerOrder: d.Cfg.Trading.SpendPerOrder,
		OrderTimeout:  d.Cfg.Trading.OrderTimeout,
		DryRun:        !d.Cfg.Exchange.LiveTrading,
	}
	factory := func(symbol string) []service.Member {
		analyst := service.NewAnalyst(service.AnalystConfig{Interval: d.Cfg.Trading.AnalystInterval},
			heuristic, d.Cache, d.Accountant, d.Repo, d.Log)
		broker := service.NewBroker(brokerCfg, analyst, d.Cache, d.Cache, d.Accountant, d.Client, d.IDs, d.Locks, d.Log)
		return []service.Member{analyst, broker}
	}
	return service.NewTeam(service.TeamConfig{
		Interval:   d.Cfg.Trading.TeamInterval,
		StaleAfter: d.Cfg.Trading.StaleAfter,
	}, d.Repo, d.Cache, factory, d.Log)
}

func NewFeeWatchdog(
	cfg *config.Config,
	c *cache.Cache,
	acc *account.Accountant,
	client *exchange.Client,
	ids idgen.Generator,
	locks *service.Locks,
	n notify.Notifier,
	log *zap.Logger,
) *service.FeeWatchdog {
	return service.NewFeeWatchdog(service.FeeConfig{
		Asset:     cfg.Fee.Asset,
		Symbol:    cfg.Fee.Symbol,
		Threshold: cfg.Fee.Threshold,
		Spend:     cfg.Fee.Spend,
		Interval:  cfg.Fee.Interval,
	}, c, c, acc, client, ids, locks, n, cfg.Trading.OrderTimeout, !cfg.Exchange.LiveTrading, log)
}

func Module() fx.Option {
	return fx.Module("trading",
		fx.Provide(
			NewIDs,
			service.NewLocks,
			NewTeam,
			NewFeeWatchdog,
		),
	)
}
