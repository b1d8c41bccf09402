package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/metrics"
	"trade_engine/internal/models"
	"trade_engine/pkg/scheduler"
)

type Repository interface {
	GetStatistics(ctx context.Context, horizon models.Horizon) ([]models.Statistics, error)
}

type ExchangeInfoSource interface {
	GetExchangeInfo(ctx context.Context, symbols ...string) (map[string]models.ExchangeSymbolInfo, error)
}

type Config struct {
	RollingSize          int
	Staleness            time.Duration
	ExchangeInfoInterval time.Duration
}

type sides struct {
	bid, ask *RollingPrice
}

// snapshotTable: снимки одного семейства по символам. Меняется целиком.
type snapshotTable map[string]*models.Statistics

// Cache: цены, статистика, фильтры биржи, открытые ордера и последние рекомендации.
type Cache struct {
	cfg  Config
	repo Repository
	info ExchangeInfoSource
	log  *zap.Logger
	now  func() time.Time

	pricesMu sync.Mutex
	prices   map[string]*sides

	stats map[models.Horizon]*atomic.Pointer[snapshotTable]
	infos atomic.Pointer[map[string]models.ExchangeSymbolInfo]

	ordersMu sync.Mutex
	orders   map[string]models.OpenOrder

	recsMu sync.RWMutex
	recs   map[string]models.Recommendation

	jobs *scheduler.JobManager
}

func New(cfg Config, repo Repository, info ExchangeInfoSource, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = 3 * time.Second
	}
	if cfg.ExchangeInfoInterval <= 0 {
		cfg.ExchangeInfoInterval = time.Hour
	}
	c := &Cache{
		cfg:    cfg,
		repo:   repo,
		info:   info,
		log:    log.Named("price_cache"),
		now:    time.Now,
		prices: make(map[string]*sides),
		stats:  make(map[models.Horizon]*atomic.Pointer[snapshotTable]),
		orders: make(map[string]models.OpenOrder),
		recs:   make(map[string]models.Recommendation),
	}
	for _, spec := range models.Horizons() {
		c.stats[spec.Horizon] = &atomic.Pointer[snapshotTable]{}
	}
	empty := map[string]models.ExchangeSymbolInfo{}
	c.infos.Store(&empty)
	return c
}

// Add: новая лучшая цена стороны стакана.
func (c *Cache) Add(symbol string, side models.PriceSide, price float64) {
	if price <= 0 {
		return
	}
	now := c.now()

	c.pricesMu.Lock()
	defer c.pricesMu.Unlock()

	s, ok := c.prices[symbol]
	if !ok {
		s = &sides{bid: NewRollingPrice(c.cfg.RollingSize), ask: NewRollingPrice(c.cfg.RollingSize)}
		c.prices[symbol] = s
	}
	if side == models.SideAsk {
		s.ask.Add(price, now)
	} else {
		s.bid.Add(price, now)
	}
}

func (c *Cache) price(symbol string, side models.PriceSide) float64 {
	now := c.now()

	c.pricesMu.Lock()
	defer c.pricesMu.Unlock()

	s, ok := c.prices[symbol]
	if !ok {
		return Stale
	}
	if side == models.SideAsk {
		return s.ask.Average(now, c.cfg.Staleness)
	}
	return s.bid.Average(now, c.cfg.Staleness)
}

func (c *Cache) GetBidPrice(symbol string) float64 { return c.price(symbol, models.SideBid) }

func (c *Cache) GetAskPrice(symbol string) float64 { return c.price(symbol, models.SideAsk) }

// SetStatistics подменяет таблицу семейства целиком.
func (c *Cache) SetStatistics(h models.Horizon, snapshots []models.Statistics) error {
	p, ok := c.stats[h]
	if !ok {
		return fmt.Errorf("unknown horizon %q", h)
	}
	table := make(snapshotTable, len(snapshots))
	for i := range snapshots {
		s := snapshots[i]
		s.Horizon = h
		table[s.Symbol] = &s
	}
	p.Store(&table)
	return nil
}

// Statistics: текущие снимки всех семейств символа. Снимки не меняются после публикации.
func (c *Cache) Statistics(symbol string) models.StatisticsSet {
	set := make(models.StatisticsSet, len(c.stats))
	for h, p := range c.stats {
		table := p.Load()
		if table == nil {
			continue
		}
		if s, ok := (*table)[symbol]; ok {
			set[h] = s
		}
	}
	return set
}

// GetSymbols: символы с валидной статистикой самого длинного семейства.
func (c *Cache) GetSymbols() []string {
	table := c.stats[models.Horizon2h].Load()
	if table == nil {
		return nil
	}
	out := make([]string, 0, len(*table))
	for sym, s := range *table {
		if s.Valid() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Cache) RefreshStatistics(ctx context.Context, h models.Horizon) error {
	snapshots, err := c.repo.GetStatistics(ctx, h)
	if err != nil {
		return fmt.Errorf("refresh statistics %s: %w", h, err)
	}
	return c.SetStatistics(h, snapshots)
}

func (c *Cache) RefreshExchangeInfo(ctx context.Context) error {
	infos, err := c.info.GetExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("refresh exchange info: %w", err)
	}
	c.infos.Store(&infos)
	c.log.Debug("exchange info refreshed", zap.Int("symbols", len(infos)))
	return nil
}

func (c *Cache) SymbolInfo(symbol string) (models.ExchangeSymbolInfo, bool) {
	infos := *c.infos.Load()
	info, ok := infos[symbol]
	return info, ok
}

func (c *Cache) SetRecommendation(r models.Recommendation) {
	c.recsMu.Lock()
	c.recs[r.Symbol] = r
	c.recsMu.Unlock()
}

func (c *Cache) LastRecommendation(symbol string) (models.Recommendation, bool) {
	c.recsMu.RLock()
	defer c.recsMu.RUnlock()
	r, ok := c.recs[symbol]
	return r, ok
}

// Start прогревает всё один раз синхронно, затем запускает периодические обновления.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.RefreshExchangeInfo(ctx); err != nil {
		c.log.Warn("initial exchange info refresh failed", zap.Error(err))
	}

	jobs := scheduler.NewJobManager(c.log, scheduler.WithRunCounter(metrics.JobRuns))
	regs := []scheduler.Registration{{
		Name:     "exchange_info",
		Interval: c.cfg.ExchangeInfoInterval,
		Handler:  c.RefreshExchangeInfo,
	}}
	for _, spec := range models.Horizons() {
		h := spec.Horizon
		if err := c.RefreshStatistics(ctx, h); err != nil {
			c.log.Warn("initial statistics refresh failed", zap.String("horizon", string(h)), zap.Error(err))
		}
		regs = append(regs, scheduler.Registration{
			Name:     "statistics_" + string(h),
			Interval: spec.Refresh,
			Handler:  func(ctx context.Context) error { return c.RefreshStatistics(ctx, h) },
		})
	}
	if err := jobs.Register(regs...); err != nil {
		return err
	}
	c.jobs = jobs
	return jobs.Start(ctx)
}

func (c *Cache) Stop() {
	if c.jobs != nil {
		c.jobs.Terminate()
	}
}
