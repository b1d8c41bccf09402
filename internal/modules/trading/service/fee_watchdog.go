package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/metrics"
	"trade_engine/internal/models"
	"trade_engine/internal/notify"
	"trade_engine/pkg/idgen"
	"trade_engine/pkg/scheduler"
)

type FeeConfig struct {
	Asset     string
	Symbol    string
	Threshold float64
	Spend     float64
	Interval  time.Duration
}

// FeeWatchdog докупает актив для оплаты комиссий, когда его свободный остаток мал.
type FeeWatchdog struct {
	cfg      FeeConfig
	market   Market
	balances Balances
	locks    *Locks
	placer   *placer
	notify   notify.Notifier
	log      *zap.Logger

	job *scheduler.JobScheduler
}

func NewFeeWatchdog(
	cfg FeeConfig,
	market Market,
	orders OrderBook,
	balances Balances,
	gw OrderGateway,
	ids idgen.Generator,
	locks *Locks,
	n notify.Notifier,
	timeout time.Duration,
	dryRun bool,
	log *zap.Logger,
) *FeeWatchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	if n == nil {
		n = notify.NewLog(log)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	log = log.Named("fee_watchdog")
	return &FeeWatchdog{
		cfg:      cfg,
		market:   market,
		balances: balances,
		locks:    locks,
		notify:   n,
		log:      log,
		placer: &placer{
			orders:  orders,
			gw:      gw,
			ids:     ids,
			timeout: timeout,
			dryRun:  dryRun,
			log:     log,
			now:     time.Now,
		},
	}
}

func (w *FeeWatchdog) Start(ctx context.Context) error {
	job, err := scheduler.NewJob(ctx, "fee_watchdog", w.cfg.Interval, w.Check, w.log,
		scheduler.WithRunCounter(metrics.JobRuns))
	if err != nil {
		return err
	}
	w.job = job
	job.Start()
	return nil
}

func (w *FeeWatchdog) Stop() {
	if w.job != nil {
		w.job.Terminate()
	}
}

// Check: при остатке ниже порога IOC-покупка по текущему ask.
func (w *FeeWatchdog) Check(ctx context.Context) error {
	bal := w.balances.GetBalance(w.cfg.Asset)
	if bal.Free >= w.cfg.Threshold {
		return nil
	}

	info, ok := w.market.SymbolInfo(w.cfg.Symbol)
	if !ok {
		return fmt.Errorf("fee symbol %s: %w", w.cfg.Symbol, ErrUnknownSymbol)
	}
	ask := w.market.GetAskPrice(w.cfg.Symbol)
	if ask <= 0 {
		return fmt.Errorf("fee symbol %s: no fresh ask price", w.cfg.Symbol)
	}

	unlock, ok := w.locks.TryLock(w.cfg.Symbol)
	if !ok {
		return nil
	}
	defer unlock()

	price := OrderPrice(ask, info)
	quote := w.balances.GetBalance(info.QuoteAsset)
	free := SpendableQuote(quote.Free, w.placer.orders.GetOpenOrderNotional(info.QuoteAsset))
	qty := BuyQuantity(w.cfg.Spend, free, price, info)
	if err := CheckFilters(info, qty, price); err != nil {
		w.log.Debug("fee top-up skipped", zap.Error(err))
		return nil
	}

	w.log.Info("fee asset low, buying",
		zap.String("asset", w.cfg.Asset),
		zap.Float64("free", bal.Free),
		zap.Float64("threshold", w.cfg.Threshold),
	)
	res, err := w.placer.place(ctx, info, models.ClientOrderSpec{
		Symbol:      w.cfg.Symbol,
		Side:        models.OrderSideBuy,
		Type:        models.OrderTypeLimit,
		TimeInForce: models.TimeInForceIOC,
		Quantity:    qty,
		Price:       price,
	})
	if err != nil {
		return err
	}
	w.notify.Sendf("%s top-up: %g @ %g (%s), free was %g", w.cfg.Asset, qty, price, res.Status, bal.Free)
	return nil
}
