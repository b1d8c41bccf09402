package service

import (
	"context"
	"time"

	"trade_engine/internal/models"
)

// Market: то, что аналитик и брокер читают из кэша.
type Market interface {
	GetBidPrice(symbol string) float64
	GetAskPrice(symbol string) float64
	Statistics(symbol string) models.StatisticsSet
	SymbolInfo(symbol string) (models.ExchangeSymbolInfo, bool)
	SetRecommendation(r models.Recommendation)
}

// OrderBook: резервы под отправленные ордера.
type OrderBook interface {
	AddOpenOrder(o models.OpenOrder) bool
	RemoveOpenOrder(id string) (models.OpenOrder, bool)
	GetOpenOrderValue(symbol string, side models.OrderSide) float64
	GetOpenOrderNotional(quoteAsset string) float64
}

type Balances interface {
	GetBalance(asset string) models.Balance
}

type OrderGateway interface {
	PlaceOrder(ctx context.Context, spec models.ClientOrderSpec) (models.OrderResult, error)
}

// DecisionStore: история решений.
type DecisionStore interface {
	InsertRecommendation(ctx context.Context, rec models.Recommendation) error
	GetLowestPrice(ctx context.Context, symbol string, since time.Time) (float64, error)
	GetLastDecisions(ctx context.Context, symbol string) (models.DecisionTimes, error)
}

type SymbolSource interface {
	GetSymbols(ctx context.Context, scope models.SymbolScope) ([]string, error)
}

// ReadySymbols: символы с достаточной статистикой.
type ReadySymbols interface {
	GetSymbols() []string
}

// Member: участник команды по одному символу.
type Member interface {
	Start(ctx context.Context, symbol string) error
	Terminate()
	LastActiveAt() time.Time
}
