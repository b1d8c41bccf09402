package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"trade_engine/internal/modules/config"
	pg "trade_engine/internal/modules/postgres/service"
	"trade_engine/pkg/db"
)

// migrate применяет схему и засевает символы из конфига без запуска движка.
// С -print только выводит итоговый конфиг (секреты скрыты).
func main() {
	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()
	v.SetDefault("config", "configs/values_local.yaml")
	v.SetDefault("timeout", 30*time.Second)

	path := flag.String("config", v.GetString("config"), "path to yaml config")
	timeout := flag.Duration("timeout", v.GetDuration("timeout"), "migration timeout")
	printOnly := flag.Bool("print", false, "print effective config and exit")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fail(err)
	}

	if *printOnly {
		out, err := render(*cfg)
		if err != nil {
			fail(err)
		}
		fmt.Print(out)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := migrate(ctx, cfg); err != nil {
		cancel()
		fail(err)
	}
	fmt.Printf("schema applied, %d symbols seeded\n", len(cfg.Symbols))
}

func migrate(ctx context.Context, cfg *config.Config) error {
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	m := db.NewPgTxManager(pool)
	defer m.Close()

	if err := m.Ping(ctx); err != nil {
		return errors.Wrap(err, "ping")
	}
	return errors.Wrap(pg.New(m, cfg.Symbols).Migrate(ctx), "migrate")
}

func render(cfg config.Config) (string, error) {
	cfg.DB = redact(cfg.DB)
	cfg.Exchange.APIKey = redact(cfg.Exchange.APIKey)
	cfg.Exchange.APISecret = redact(cfg.Exchange.APISecret)
	cfg.Telegram.Token = redact(cfg.Telegram.Token)

	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "marshal config to yaml")
	}
	return string(bs), nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
