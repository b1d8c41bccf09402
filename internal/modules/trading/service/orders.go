package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/helper"
	"trade_engine/internal/metrics"
	"trade_engine/internal/models"
	"trade_engine/pkg/idgen"
	"trade_engine/pkg/tracing"
)

var (
	ErrMinNotional       = errors.New("order below min notional")
	ErrPriceRange        = errors.New("price outside allowed range")
	ErrLotSize           = errors.New("quantity outside lot size")
	ErrInsufficientFunds = errors.New("free balance below quantity")
	ErrDuplicateOrder    = errors.New("order id already reserved")
	ErrUnknownSymbol     = errors.New("no exchange filters for symbol")
)

// quotePlaces: точность суммы покупки в котируемом активе.
const quotePlaces = 2

// BuyQuantity: тратим min(spend, free), округлив вниз до центов, количество по цене вниз до шага.
func BuyQuantity(spend, freeQuote, price float64, info models.ExchangeSymbolInfo) float64 {
	if price <= 0 {
		return 0
	}
	amount := helper.FloorPlaces(math.Min(spend, freeQuote), quotePlaces)
	if amount <= 0 {
		return 0
	}
	return baseQuantity(amount/price, info)
}

// SpendableQuote: свободный остаток за вычетом уже зарезервированных покупок.
func SpendableQuote(free, reserved float64) float64 {
	if free <= reserved {
		return 0
	}
	return free - reserved
}

// SellQuantity: весь свободный баланс, но ноль, если по символу уже висит продажа.
func SellQuantity(free, reserved float64, info models.ExchangeSymbolInfo) float64 {
	if reserved > 0 || free <= 0 {
		return 0
	}
	return baseQuantity(free, info)
}

func baseQuantity(qty float64, info models.ExchangeSymbolInfo) float64 {
	if info.StepSize > 0 {
		qty = helper.RoundDownToTick(qty, info.StepSize)
	}
	if info.BasePrecision > 0 {
		qty = helper.FloorPlaces(qty, info.BasePrecision)
	}
	return qty
}

// OrderPrice приводит цену к шагу и точности символа.
func OrderPrice(price float64, info models.ExchangeSymbolInfo) float64 {
	if info.TickSize > 0 {
		price = helper.RoundDownToTick(price, info.TickSize)
	}
	if info.PricePrecision > 0 {
		price = helper.FloorPlaces(price, info.PricePrecision)
	}
	return price
}

// CheckFilters: мин. нотионал, диапазон цены, лот. MaxPrice/MaxQty == 0 без ограничения.
func CheckFilters(info models.ExchangeSymbolInfo, qty, price float64) error {
	if price <= 0 || qty*price < info.MinNotional {
		return fmt.Errorf("%w: %g*%g < %g", ErrMinNotional, qty, price, info.MinNotional)
	}
	if price < info.MinPrice || (info.MaxPrice > 0 && price > info.MaxPrice) {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrPriceRange, price, info.MinPrice, info.MaxPrice)
	}
	if qty <= 0 || qty < info.MinQty || (info.MaxQty > 0 && qty > info.MaxQty) {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrLotSize, qty, info.MinQty, info.MaxQty)
	}
	return nil
}

// CheckFunds: продаём не больше свободного.
func CheckFunds(free, qty float64) error {
	if free < qty {
		return fmt.Errorf("%w: %g < %g", ErrInsufficientFunds, free, qty)
	}
	return nil
}

// placer резервирует ордер, отправляет его с таймаутом и снимает резерв при неудаче.
type placer struct {
	orders  OrderBook
	gw      OrderGateway
	ids     idgen.Generator
	timeout time.Duration
	dryRun  bool
	log     *zap.Logger
	now     func() time.Time
}

func (p *placer) place(ctx context.Context, info models.ExchangeSymbolInfo, spec models.ClientOrderSpec) (res models.OrderResult, err error) {
	span, ctx := tracing.StartSpan(ctx, "broker.place_order", map[string]any{
		"symbol": spec.Symbol,
		"side":   string(spec.Side),
	})
	defer func() {
		if err != nil {
			span.SetTag("error", true)
		}
		span.Finish()
	}()

	spec.ClientOrderID = idgen.ClientOrderID(p.ids)
	fields := []zap.Field{
		zap.String("symbol", spec.Symbol),
		zap.String("side", string(spec.Side)),
		zap.Float64("qty", spec.Quantity),
		zap.Float64("price", spec.Price),
		zap.String("client_id", spec.ClientOrderID),
	}

	if p.dryRun {
		metrics.Orders.WithLabelValues(spec.Symbol, string(spec.Side), "dry_run").Inc()
		p.log.Info("dry run order", fields...)
		return models.OrderResult{Symbol: spec.Symbol, ClientOrderID: spec.ClientOrderID}, nil
	}

	ok := p.orders.AddOpenOrder(models.OpenOrder{
		ID:         spec.ClientOrderID,
		Symbol:     spec.Symbol,
		QuoteAsset: info.QuoteAsset,
		Side:       spec.Side,
		Quantity:   spec.Quantity,
		Price:      spec.Price,
		CreatedAt:  p.now(),
	})
	if !ok {
		return res, ErrDuplicateOrder
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err = p.gw.PlaceOrder(callCtx, spec)
	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		p.orders.RemoveOpenOrder(spec.ClientOrderID)
		metrics.Orders.WithLabelValues(spec.Symbol, string(spec.Side), "timeout").Inc()
		p.log.Warn("order timed out, reservation released", append(fields, zap.Duration("timeout", p.timeout))...)
		return res, err
	case err != nil:
		p.orders.RemoveOpenOrder(spec.ClientOrderID)
		metrics.Orders.WithLabelValues(spec.Symbol, string(spec.Side), "error").Inc()
		p.log.Error("order failed", append(fields, zap.Error(err))...)
		return res, err
	}

	// исполненный сразу ордер может не дождаться отчёта из пользовательского потока
	if res.Status.Terminal() {
		p.orders.RemoveOpenOrder(spec.ClientOrderID)
	}
	metrics.Orders.WithLabelValues(spec.Symbol, string(spec.Side), "placed").Inc()
	p.log.Info("order placed", append(fields, zap.String("status", string(res.Status)), zap.Int64("order_id", res.OrderID))...)
	return res, nil
}
