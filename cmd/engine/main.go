package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/fx"

	"trade_engine/internal/modules/accountant"
	"trade_engine/internal/modules/bootstrap"
	"trade_engine/internal/modules/collector"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/engine"
	"trade_engine/internal/modules/exchange"
	"trade_engine/internal/modules/health"
	"trade_engine/internal/modules/postgres"
	"trade_engine/internal/modules/pricecache"
	telegram "trade_engine/internal/modules/telegram_bot"
	"trade_engine/internal/modules/trading"
)

func main() {
	app := fx.New(
		fx.StartTimeout(time.Minute),
		fx.StopTimeout(15*time.Second),
		fx.WithLogger(bootstrap.FxLogger),
		config.Module(),
		bootstrap.Module(),
		postgres.Module(),
		exchange.Module(),
		telegram.Module(),
		health.Module(),
		pricecache.Module(),
		accountant.Module(),
		collector.Module(),
		trading.Module(),
		engine.Module(),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	if err := app.Start(startCtx); err != nil {
		log.Fatal(err)
	}
	cancel()

	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	if err := app.Stop(stopCtx); err != nil {
		log.Printf("stop: %v", err)
	}
	cancelStop()
	os.Exit(sig.ExitCode)
}
