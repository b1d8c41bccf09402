package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/notify"
)

func NewNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	return notify.New(notify.Config{
		Token:  cfg.Telegram.Token,
		ChatID: cfg.Telegram.ChatID,
	}, log)
}

// Module: уведомления в Telegram. Без токена уходят в лог.
func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(NewNotifier),
		fx.Invoke(
			func(lc fx.Lifecycle, n notify.Notifier) {
				tg, ok := n.(*notify.Telegram)
				if !ok {
					return
				}
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go tg.Run(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						return nil
					},
				})
			},
		),
	)
}
