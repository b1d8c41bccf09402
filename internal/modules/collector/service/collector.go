package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	"trade_engine/internal/metrics"
	"trade_engine/internal/models"
	"trade_engine/pkg/scheduler"
)

type Repository interface {
	GetSymbols(ctx context.Context, scope models.SymbolScope) ([]string, error)
	InsertTick(ctx context.Context, t models.Tick) error
	InsertKline(ctx context.Context, k models.Kline) error
	InsertBookPrice(ctx context.Context, b models.BookPrice) error
}

type Streams interface {
	SubscribeTicker(ctx context.Context, symbol string, fn func(models.Tick)) (exchange.Handle, error)
	SubscribeKline(ctx context.Context, symbol, interval string, fn func(models.Kline)) (exchange.Handle, error)
	SubscribeBookTicker(ctx context.Context, symbol string, fn func(models.BookPrice)) (exchange.Handle, error)
	Unsubscribe(ctx context.Context, h exchange.Handle) error
}

// PriceSink: кэш лучших цен.
type PriceSink interface {
	Add(symbol string, side models.PriceSide, price float64)
}

// Observer отмечает время последнего рыночного события.
type Observer interface {
	TouchTick(t time.Time)
}

type Config struct {
	Interval       time.Duration
	KlineIntervals []string
	MaxFailures    int
	QueueCapacity  int
	TickerWorkers  int
	KlineWorkers   int
	BookWorkers    int
	DrainWait      time.Duration
}

// Collector держит подписки на потоки в соответствии со списком символов для сбора
// и складывает события в хранилище через очереди.
type Collector struct {
	cfg     Config
	repo    Repository
	streams Streams
	prices  PriceSink
	obs     Observer
	log     *zap.Logger
	exit    func(code int)

	mu       sync.Mutex
	subs     map[string][]exchange.Handle
	failures map[string]int
	fatal    bool

	ticks  *Queue[models.Tick]
	klines *Queue[models.Kline]
	books  *Queue[models.BookPrice]

	job    *scheduler.JobScheduler
	cancel context.CancelFunc
}

// New: exit вызывается, когда подписка на символ исчерпала попытки.
func New(cfg Config, repo Repository, streams Streams, prices PriceSink, obs Observer, exit func(code int), log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 30
	}
	if cfg.DrainWait <= 0 {
		cfg.DrainWait = time.Second
	}
	if len(cfg.KlineIntervals) == 0 {
		cfg.KlineIntervals = []string{"1m"}
	}
	log = log.Named("collector")
	c := &Collector{
		cfg:      cfg,
		repo:     repo,
		streams:  streams,
		prices:   prices,
		obs:      obs,
		log:      log,
		exit:     exit,
		subs:     make(map[string][]exchange.Handle),
		failures: make(map[string]int),
	}
	c.ticks = NewQueue("ticker", cfg.QueueCapacity, cfg.TickerWorkers, repo.InsertTick, log)
	c.klines = NewQueue("kline", cfg.QueueCapacity, cfg.KlineWorkers, repo.InsertKline, log)
	c.books = NewQueue("book_ticker", cfg.QueueCapacity, cfg.BookWorkers, repo.InsertBookPrice, log)
	return c
}

func (c *Collector) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c.ticks.Start(ctx)
	c.klines.Start(ctx)
	c.books.Start(ctx)

	job, err := scheduler.NewJob(ctx, "collector_reconcile", c.cfg.Interval, c.Reconcile, c.log,
		scheduler.WithRunCounter(metrics.JobRuns))
	if err != nil {
		cancel()
		return err
	}
	c.job = job
	c.cancel = cancel

	if err := c.Reconcile(ctx); err != nil {
		c.log.Warn("initial reconcile failed", zap.Error(err))
	}
	job.Start()
	return nil
}

// Stop: новых подписок нет, старые сняты, очереди дочищены, затем отмена.
func (c *Collector) Stop(ctx context.Context) {
	if c.job != nil {
		c.job.Stop()
	}

	c.mu.Lock()
	symbols := make([]string, 0, len(c.subs))
	for s := range c.subs {
		symbols = append(symbols, s)
	}
	c.mu.Unlock()
	for _, s := range symbols {
		c.unsubscribe(ctx, s)
	}

	c.ticks.Complete()
	c.klines.Complete()
	c.books.Complete()

	deadline := time.Now().Add(c.cfg.DrainWait)
	for _, drain := range []func(time.Duration) bool{c.ticks.Drain, c.klines.Drain, c.books.Drain} {
		if !drain(time.Until(deadline)) {
			c.log.Warn("queue drain timed out")
		}
	}

	if c.job != nil {
		c.job.Terminate()
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// Reconcile приводит подписки к списку символов для сбора.
func (c *Collector) Reconcile(ctx context.Context) error {
	required, err := c.repo.GetSymbols(ctx, models.ScopeCollection)
	if err != nil {
		return err
	}
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}

	for _, s := range required {
		if c.subscribed(s) {
			continue
		}
		if err := c.subscribe(ctx, s); err != nil {
			if c.fail(s, err) {
				return err
			}
			continue
		}
		c.mu.Lock()
		delete(c.failures, s)
		c.mu.Unlock()
	}

	for _, s := range c.Subscribed() {
		if _, ok := want[s]; !ok {
			c.unsubscribe(ctx, s)
		}
	}
	return nil
}

// fail считает неудачу; true: попытки исчерпаны и процесс завершается.
func (c *Collector) fail(symbol string, err error) bool {
	c.mu.Lock()
	c.failures[symbol]++
	n := c.failures[symbol]
	fatal := n >= c.cfg.MaxFailures && !c.fatal
	if fatal {
		c.fatal = true
	}
	c.mu.Unlock()

	if !fatal {
		c.log.Warn("subscribe failed", zap.String("symbol", symbol), zap.Int("attempt", n), zap.Error(err))
		return false
	}
	c.log.Error("subscribe retries exhausted, exiting", zap.String("symbol", symbol), zap.Int("attempts", n), zap.Error(err))
	if c.exit != nil {
		c.exit(1)
	}
	return true
}

func (c *Collector) subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[symbol]
	return ok
}

func (c *Collector) subscribe(ctx context.Context, symbol string) error {
	var handles []exchange.Handle
	rollback := func() {
		for _, h := range handles {
			_ = c.streams.Unsubscribe(ctx, h)
		}
	}

	h, err := c.streams.SubscribeTicker(ctx, symbol, c.onTick)
	if err != nil {
		return err
	}
	handles = append(handles, h)

	h, err = c.streams.SubscribeBookTicker(ctx, symbol, c.onBook)
	if err != nil {
		rollback()
		return err
	}
	handles = append(handles, h)

	for _, interval := range c.cfg.KlineIntervals {
		h, err = c.streams.SubscribeKline(ctx, symbol, interval, c.onKline)
		if err != nil {
			rollback()
			return err
		}
		handles = append(handles, h)
	}

	c.mu.Lock()
	c.subs[symbol] = handles
	n := len(c.subs)
	c.mu.Unlock()

	metrics.ActiveSubscriptions.Set(float64(n))
	c.log.Info("subscribed", zap.String("symbol", symbol))
	return nil
}

func (c *Collector) unsubscribe(ctx context.Context, symbol string) {
	c.mu.Lock()
	handles := c.subs[symbol]
	delete(c.subs, symbol)
	n := len(c.subs)
	c.mu.Unlock()

	var errs []error
	for _, h := range handles {
		errs = append(errs, c.streams.Unsubscribe(ctx, h))
	}
	if err := errors.Join(errs...); err != nil {
		c.log.Debug("unsubscribe", zap.String("symbol", symbol), zap.Error(err))
	}
	metrics.ActiveSubscriptions.Set(float64(n))
	c.log.Info("unsubscribed", zap.String("symbol", symbol))
}

// Subscribed: символы с активными подписками.
func (c *Collector) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	return out
}

func (c *Collector) onTick(t models.Tick) {
	if err := c.ticks.Post(t); err != nil {
		c.log.Debug("tick dropped", zap.String("symbol", t.Symbol), zap.Error(err))
	}
}

func (c *Collector) onKline(k models.Kline) {
	if err := c.klines.Post(k); err != nil {
		c.log.Debug("kline dropped", zap.String("symbol", k.Symbol), zap.Error(err))
	}
}

func (c *Collector) onBook(b models.BookPrice) {
	c.prices.Add(b.Symbol, models.SideBid, b.Bid)
	c.prices.Add(b.Symbol, models.SideAsk, b.Ask)
	if c.obs != nil {
		c.obs.TouchTick(b.ReceivedAt)
	}
	if err := c.books.Post(b); err != nil {
		c.log.Debug("book price dropped", zap.String("symbol", b.Symbol), zap.Error(err))
	}
}
