package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"trade_engine/internal/strategy"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	envPrefix         = "ENGINE"
)

type ExchangeConfig struct {
	APIKey            string        `yaml:"api_key"`
	APISecret         string        `yaml:"api_secret"`
	RestURL           string        `yaml:"rest_url"`
	StreamURL         string        `yaml:"stream_url"`
	RecvWindow        time.Duration `yaml:"recv_window"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
	NodeID            int64         `yaml:"node_id"`
	LiveTrading       bool          `yaml:"live_trading"`
}

type CollectorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	KlineIntervals []string      `yaml:"kline_intervals"`
	MaxFailures    int           `yaml:"max_failures"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	TickerWorkers  int           `yaml:"ticker_workers"`
	KlineWorkers   int           `yaml:"kline_workers"`
	BookWorkers    int           `yaml:"book_workers"`
	DrainWait      time.Duration `yaml:"drain_wait"`
}

type CacheConfig struct {
	RollingSize          int           `yaml:"rolling_size"`
	Staleness            time.Duration `yaml:"staleness"`
	ExchangeInfoInterval time.Duration `yaml:"exchange_info_interval"`
}

type AccountConfig struct {
	ResyncInterval    time.Duration `yaml:"resync_interval"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
}

type TradingConfig struct {
	AnalystInterval time.Duration `yaml:"analyst_interval"`
	TeamInterval    time.Duration `yaml:"team_interval"`
	SpendPerOrder   float64       `yaml:"spend_per_order"`
	OrderTimeout    time.Duration `yaml:"order_timeout"`
	StaleAfter      time.Duration `yaml:"stale_after"`
}

type FeeConfig struct {
	Asset     string        `yaml:"asset"`
	Symbol    string        `yaml:"symbol"`
	Threshold float64       `yaml:"threshold"`
	Spend     float64       `yaml:"spend"`
	Interval  time.Duration `yaml:"interval"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string   `yaml:"db_dsn"`
	Symbols []string `yaml:"symbols"`
	Service struct {
		HealthAddr string `yaml:"health_addr"`
	} `yaml:"service"`

	Log     logger.Config  `yaml:"log"`
	Tracing tracing.Config `yaml:"tracing"`

	Exchange   ExchangeConfig      `yaml:"exchange"`
	Collector  CollectorConfig     `yaml:"collector"`
	Cache      CacheConfig         `yaml:"cache"`
	Account    AccountConfig       `yaml:"account"`
	Trading    TradingConfig       `yaml:"trading"`
	Fee        FeeConfig           `yaml:"fee"`
	Thresholds strategy.Thresholds `yaml:"thresholds"`
}

// Default: значения, поверх которых декодируется файл.
func Default() Config {
	cfg := Config{
		Exchange: ExchangeConfig{
			RestURL:           "https://api.binance.com",
			StreamURL:         "wss://stream.binance.com:9443/stream",
			RecvWindow:        5 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
			NodeID:            1,
		},
		Collector: CollectorConfig{
			Interval:       5 * time.Second,
			KlineIntervals: []string{"1m"},
			MaxFailures:    30,
			QueueCapacity:  4096,
			TickerWorkers:  2,
			KlineWorkers:   4,
			BookWorkers:    4,
			DrainWait:      time.Second,
		},
		Cache: CacheConfig{
			RollingSize:          10,
			Staleness:            3 * time.Second,
			ExchangeInfoInterval: time.Hour,
		},
		Account: AccountConfig{
			ResyncInterval:    time.Minute,
			KeepAliveInterval: 30 * time.Minute,
		},
		Trading: TradingConfig{
			AnalystInterval: time.Second,
			TeamInterval:    5 * time.Second,
			SpendPerOrder:   20,
			OrderTimeout:    2 * time.Second,
			StaleAfter:      time.Minute,
		},
		Fee: FeeConfig{
			Asset:     "BNB",
			Symbol:    "BNBUSDT",
			Threshold: 0.05,
			Spend:     11,
			Interval:  5 * time.Minute,
		},
		Thresholds: strategy.DefaultThresholds(),
	}
	cfg.Service.HealthAddr = ":8080"
	cfg.Log = logger.Config{Level: "info", ServiceName: "trade_engine"}
	cfg.Tracing = tracing.Config{Host: "localhost", Port: 6831, ServiceName: "trade_engine"}
	return cfg
}

func NewConfig() (*Config, error) {
	dir := os.Getenv(configDirENV)
	if dir == "" {
		dir = "configs"
	}
	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = "values_local.yaml"
	}
	return Load(filepath.Join(dir, name))
}

// Load читает yaml поверх дефолтов и применяет переменные окружения.
func Load(path string) (cfg *Config, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("config.Load %s: %w", path, err)
		}
	}()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	c := Default()
	if err = yaml.NewDecoder(file).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	applyEnv(&c, newEnv())

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// старые имена переменных тоже понимаем
	_ = v.BindEnv("db_dsn", envPrefix+"_DB_DSN", "DATABASE_DSN")
	_ = v.BindEnv("telegram.token", envPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	return v
}

func applyEnv(c *Config, v *viper.Viper) {
	if s := v.GetString("db_dsn"); s != "" {
		c.DB = s
	}
	if s := v.GetString("telegram.token"); s != "" {
		c.Telegram.Token = s
	}
	if v.IsSet("telegram.chat_id") {
		c.Telegram.ChatID = v.GetInt64("telegram.chat_id")
	}
	if s := v.GetString("exchange.api_key"); s != "" {
		c.Exchange.APIKey = s
	}
	if s := v.GetString("exchange.api_secret"); s != "" {
		c.Exchange.APISecret = s
	}
	if v.IsSet("exchange.live_trading") {
		c.Exchange.LiveTrading = v.GetBool("exchange.live_trading")
	}
	if s := v.GetString("symbols"); s != "" {
		c.Symbols = splitList(s)
	}
	if s := v.GetString("log.level"); s != "" {
		c.Log.Level = s
	}
	if v.IsSet("tracing.enabled") {
		c.Tracing.Enabled = v.GetBool("tracing.enabled")
	}
	if s := v.GetString("service.health_addr"); s != "" {
		c.Service.HealthAddr = s
	}
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToUpper(p))
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db_dsn is required"))
	}
	if c.Exchange.LiveTrading && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		errs = append(errs, errors.New("exchange api key and secret are required for live trading"))
	}
	for name, d := range map[string]time.Duration{
		"collector.interval":        c.Collector.Interval,
		"cache.staleness":           c.Cache.Staleness,
		"account.resync_interval":   c.Account.ResyncInterval,
		"trading.analyst_interval":  c.Trading.AnalystInterval,
		"trading.team_interval":     c.Trading.TeamInterval,
		"trading.order_timeout":     c.Trading.OrderTimeout,
		"fee.interval":              c.Fee.Interval,
		"account.keep_alive":        c.Account.KeepAliveInterval,
		"cache.exchange_info_every": c.Cache.ExchangeInfoInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Collector.MaxFailures <= 0 {
		errs = append(errs, errors.New("collector.max_failures must be positive"))
	}
	if len(c.Collector.KlineIntervals) == 0 {
		errs = append(errs, errors.New("collector.kline_intervals must not be empty"))
	}
	if c.Trading.SpendPerOrder <= 0 {
		errs = append(errs, errors.New("trading.spend_per_order must be positive"))
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
