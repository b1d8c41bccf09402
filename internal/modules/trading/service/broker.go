package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/models"
	"trade_engine/pkg/idgen"
)

type BrokerConfig struct {
	SpendPerOrder float64
	OrderTimeout  time.Duration
	DryRun        bool
}

// RecommendationSource: аналитик своего символа.
type RecommendationSource interface {
	Subscribe(fn func(models.Recommendation))
}

// Broker исполняет рекомендации своего аналитика. По символу не больше одной сделки сразу.
type Broker struct {
	cfg      BrokerConfig
	market   Market
	orders   OrderBook
	balances Balances
	locks    *Locks
	source   RecommendationSource
	placer   *placer
	log      *zap.Logger
	now      func() time.Time

	symbol string
	inbox  chan models.Recommendation
	cancel context.CancelFunc
	done   chan struct{}

	lastActive atomic.Int64
}

func NewBroker(
	cfg BrokerConfig,
	source RecommendationSource,
	market Market,
	orders OrderBook,
	balances Balances,
	gw OrderGateway,
	ids idgen.Generator,
	locks *Locks,
	log *zap.Logger,
) *Broker {
	if cfg.SpendPerOrder <= 0 {
		cfg.SpendPerOrder = 20
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &Broker{
		cfg:      cfg,
		market:   market,
		orders:   orders,
		balances: balances,
		locks:    locks,
		source:   source,
		log:      log,
		now:      time.Now,
		inbox:    make(chan models.Recommendation, 1),
	}
	b.placer = &placer{
		orders:  orders,
		gw:      gw,
		ids:     ids,
		timeout: cfg.OrderTimeout,
		dryRun:  cfg.DryRun,
		log:     log,
		now:     b.now,
	}
	return b
}

func (b *Broker) Start(ctx context.Context, symbol string) error {
	b.symbol = symbol
	b.log = b.log.Named("broker").With(zap.String("symbol", symbol))
	b.placer.log = b.log
	b.touch()

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	b.source.Subscribe(b.offer)
	go b.run(ctx)
	return nil
}

func (b *Broker) Terminate() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}

func (b *Broker) LastActiveAt() time.Time {
	return time.Unix(0, b.lastActive.Load())
}

func (b *Broker) touch() { b.lastActive.Store(b.now().UnixNano()) }

// offer кладёт рекомендацию в ящик, вытесняя необработанную старую.
func (b *Broker) offer(rec models.Recommendation) {
	for {
		select {
		case b.inbox <- rec:
			return
		default:
		}
		select {
		case <-b.inbox:
		default:
		}
	}
}

func (b *Broker) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-b.inbox:
			b.touch()
			if err := b.Handle(ctx, rec); err != nil && !errors.Is(err, errBusy) {
				b.log.Debug("recommendation not executed", zap.Stringer("action", rec.Action), zap.Error(err))
			}
		}
	}
}

var errBusy = errors.New("trade in progress")

// Handle исполняет одну рекомендацию. Нарушение фильтров: не ошибка сделки, просто пропуск.
func (b *Broker) Handle(ctx context.Context, rec models.Recommendation) error {
	if !rec.Action.IsBuy() && !rec.Action.IsSell() {
		return nil
	}

	unlock, ok := b.locks.TryLock(rec.Symbol)
	if !ok {
		return errBusy
	}
	defer unlock()

	if rec.Action.IsBuy() {
		return b.Buy(ctx, rec.Symbol)
	}
	return b.Sell(ctx, rec.Symbol)
}

func (b *Broker) Buy(ctx context.Context, symbol string) error {
	info, ok := b.market.SymbolInfo(symbol)
	if !ok || !info.Trading() {
		return ErrUnknownSymbol
	}
	price := OrderPrice(b.market.GetBidPrice(symbol), info)
	quote := b.balances.GetBalance(info.QuoteAsset)
	free := SpendableQuote(quote.Free, b.orders.GetOpenOrderNotional(info.QuoteAsset))

	qty := BuyQuantity(b.cfg.SpendPerOrder, free, price, info)
	if err := CheckFilters(info, qty, price); err != nil {
		b.log.Debug("buy skipped", zap.Error(err))
		return nil
	}
	_, err := b.placer.place(ctx, info, models.ClientOrderSpec{
		Symbol:      symbol,
		Side:        models.OrderSideBuy,
		Type:        models.OrderTypeLimit,
		TimeInForce: models.TimeInForceGTC,
		Quantity:    qty,
		Price:       price,
	})
	return err
}

func (b *Broker) Sell(ctx context.Context, symbol string) error {
	info, ok := b.market.SymbolInfo(symbol)
	if !ok || !info.Trading() {
		return ErrUnknownSymbol
	}
	price := OrderPrice(b.market.GetBidPrice(symbol), info)
	base := b.balances.GetBalance(info.BaseAsset)
	reserved := b.orders.GetOpenOrderValue(symbol, models.OrderSideSell)

	qty := SellQuantity(base.Free, reserved, info)
	err := CheckFilters(info, qty, price)
	if err == nil {
		err = CheckFunds(base.Free, qty)
	}
	if err != nil {
		b.log.Debug("sell skipped", zap.Error(err))
		return nil
	}
	_, err = b.placer.place(ctx, info, models.ClientOrderSpec{
		Symbol:      symbol,
		Side:        models.OrderSideSell,
		Type:        models.OrderTypeLimit,
		TimeInForce: models.TimeInForceGTC,
		Quantity:    qty,
		Price:       price,
	})
	return err
}
