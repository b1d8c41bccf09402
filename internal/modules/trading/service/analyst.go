package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/metrics"
	"trade_engine/internal/models"
	"trade_engine/internal/strategy"
	"trade_engine/pkg/scheduler"
)

type AnalystConfig struct {
	Interval time.Duration
	// LowestRefresh: как часто перечитывать минимум цены для детектора гонки.
	LowestRefresh time.Duration
}

// Analyst раз в тик принимает решение по одному символу и публикует рекомендацию.
type Analyst struct {
	cfg      AnalystConfig
	engine   strategy.Engine
	lookback time.Duration
	market   Market
	balances Balances
	store    DecisionStore
	log      *zap.Logger
	now      func() time.Time

	symbol string
	state  *strategy.AnalysisState
	job    *scheduler.JobScheduler

	lowest   float64
	lowestAt time.Time

	subsMu sync.RWMutex
	subs   []func(models.Recommendation)

	lastActive atomic.Int64
}

func NewAnalyst(cfg AnalystConfig, engine *strategy.Heuristic, market Market, balances Balances, store DecisionStore, log *zap.Logger) *Analyst {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.LowestRefresh <= 0 {
		cfg.LowestRefresh = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyst{
		cfg:      cfg,
		engine:   engine,
		lookback: engine.Thresholds().RaceLookback,
		market:   market,
		balances: balances,
		store:    store,
		log:      log,
		now:      time.Now,
		state:    strategy.NewAnalysisState(),
	}
}

// Subscribe: колбэк вызывается из горутины аналитика, он не должен блокировать.
func (a *Analyst) Subscribe(fn func(models.Recommendation)) {
	a.subsMu.Lock()
	a.subs = append(a.subs, fn)
	a.subsMu.Unlock()
}

func (a *Analyst) Start(ctx context.Context, symbol string) error {
	a.symbol = symbol
	a.log = a.log.Named("analyst").With(zap.String("symbol", symbol))
	a.touch()

	if times, err := a.store.GetLastDecisions(ctx, symbol); err != nil {
		a.log.Warn("decision history unavailable", zap.Error(err))
	} else {
		a.state.Restore(times)
	}

	job, err := scheduler.NewJob(ctx, "analyst_"+symbol, a.cfg.Interval, a.Tick, a.log,
		scheduler.WithRunCounter(metrics.JobRuns))
	if err != nil {
		return err
	}
	a.job = job
	job.Start()
	return nil
}

func (a *Analyst) Terminate() {
	if a.job != nil {
		a.job.Terminate()
	}
}

func (a *Analyst) LastActiveAt() time.Time {
	return time.Unix(0, a.lastActive.Load())
}

func (a *Analyst) touch() { a.lastActive.Store(a.now().UnixNano()) }

// Tick: одно решение. Состояние трогает только горутина задачи.
func (a *Analyst) Tick(ctx context.Context) error {
	now := a.now()
	a.touch()

	price := a.market.GetBidPrice(a.symbol)
	stats := a.market.Statistics(a.symbol)
	prev, hadPrev := a.state.Current, !a.state.LastTickAt.IsZero()

	action := a.engine.Decide(a.state, strategy.Input{
		Price:        price,
		Stats:        stats,
		LowestRecent: a.lowestPrice(ctx, now),
		QuoteShare:   a.quoteShare(price),
		Now:          now,
	})

	rec := models.NewRecommendation(a.symbol, action, price, now, stats)
	if err := a.store.InsertRecommendation(ctx, rec); err != nil {
		a.log.Warn("recommendation not stored", zap.Error(err))
	}
	a.market.SetRecommendation(rec)
	metrics.Recommendations.WithLabelValues(a.symbol, action.String()).Inc()

	if !hadPrev || prev != action {
		a.log.Info("recommendation changed", zap.Stringer("action", action), zap.Float64("price", price))
	} else {
		a.log.Debug("recommendation", zap.Stringer("action", action), zap.Float64("price", price))
	}
	a.publish(rec)
	return nil
}

func (a *Analyst) publish(rec models.Recommendation) {
	a.subsMu.RLock()
	subs := a.subs
	a.subsMu.RUnlock()
	for _, fn := range subs {
		fn(rec)
	}
}

// lowestPrice: минимум за окно гонки, перечитывается не чаще LowestRefresh.
func (a *Analyst) lowestPrice(ctx context.Context, now time.Time) float64 {
	if !a.lowestAt.IsZero() && now.Sub(a.lowestAt) < a.cfg.LowestRefresh {
		return a.lowest
	}
	p, err := a.store.GetLowestPrice(ctx, a.symbol, now.Add(-a.lookback))
	if err != nil {
		a.log.Warn("lowest price unavailable", zap.Error(err))
		return a.lowest
	}
	a.lowest, a.lowestAt = p, now
	return p
}

// quoteShare: доля котируемого актива в стоимости позиции по символу.
func (a *Analyst) quoteShare(price float64) float64 {
	info, ok := a.market.SymbolInfo(a.symbol)
	if !ok || price <= 0 {
		return 0
	}
	base := a.balances.GetBalance(info.BaseAsset)
	quote := a.balances.GetBalance(info.QuoteAsset)

	held := (base.Free + base.Locked) * price
	cash := quote.Free + quote.Locked
	if held+cash <= 0 {
		return 0
	}
	return cash / (held + cash)
}
