package engine

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	account "trade_engine/internal/modules/accountant/service"
	collect "trade_engine/internal/modules/collector/service"
	"trade_engine/internal/modules/engine/service"
	health "trade_engine/internal/modules/health/service"
	pg "trade_engine/internal/modules/postgres/service"
	cache "trade_engine/internal/modules/pricecache/service"
	trading "trade_engine/internal/modules/trading/service"
)

type deps struct {
	fx.In

	Client     *exchange.Client
	Repo       *pg.Repository
	Accountant *account.Accountant
	Cache      *cache.Cache
	Collector  *collect.Collector
	Team       *trading.Team
	Fee        *trading.FeeWatchdog
	State      *health.State
	Log        *zap.Logger
}

func NewEngine(d deps) *service.Engine {
	hub := d.Client.Streams()
	hub.OnState(d.State.SetWSConnected)

	return service.New(service.Config{}, service.Parts{
		Gateway:    d.Client,
		Repo:       d.Repo,
		Stream:     hub,
		Accountant: d.Accountant,
		Cache:      d.Cache,
		Collector:  d.Collector,
		Team:       d.Team,
		Fee:        d.Fee,
		Health:     d.State,
	}, d.Log)
}

func Run(lc fx.Lifecycle, e *service.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return e.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return e.Stop(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(NewEngine),
		fx.Invoke(Run),
	)
}
