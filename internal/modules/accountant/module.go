package accountant

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	"trade_engine/internal/modules/accountant/service"
	"trade_engine/internal/modules/config"
	cache "trade_engine/internal/modules/pricecache/service"
	"trade_engine/internal/notify"
)

func NewAccountant(cfg *config.Config, client *exchange.Client, c *cache.Cache, n notify.Notifier, log *zap.Logger) *service.Accountant {
	return service.New(service.Config{
		ResyncInterval:    cfg.Account.ResyncInterval,
		KeepAliveInterval: cfg.Account.KeepAliveInterval,
	}, client, c, n, log)
}

func Module() fx.Option {
	return fx.Module("accountant",
		fx.Provide(NewAccountant),
	)
}
