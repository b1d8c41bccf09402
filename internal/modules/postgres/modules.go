package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/postgres/service"
	"trade_engine/pkg/db"
)

// Module: пул, менеджер транзакций и репозиторий.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(context.Background(), db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}
				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return m.Ping(ctx)
					},
					OnStop: func(context.Context) error {
						m.Close()
						return nil
					},
				})
				return m, nil
			},
			func(m *db.PgTxManager, cfg *config.Config) *service.Repository {
				return service.New(m, cfg.Symbols)
			},
		),
	)
}
