package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trade_engine/internal/models"
	cache "trade_engine/internal/modules/pricecache/service"
)

var btcInfo = models.ExchangeSymbolInfo{
	Symbol:         "BTCUSDT",
	Status:         "TRADING",
	BaseAsset:      "BTC",
	QuoteAsset:     "USDT",
	MinNotional:    5,
	MinPrice:       0.01,
	MaxPrice:       1000000,
	TickSize:       0.01,
	MinQty:         0.00001,
	MaxQty:         9000,
	StepSize:       0.00001,
	PricePrecision: 2,
	BasePrecision:  5,
}

type infoSource map[string]models.ExchangeSymbolInfo

func (s infoSource) GetExchangeInfo(context.Context, ...string) (map[string]models.ExchangeSymbolInfo, error) {
	return s, nil
}

type noStats struct{}

func (noStats) GetStatistics(context.Context, models.Horizon) ([]models.Statistics, error) {
	return nil, nil
}

// newMarket: настоящий кэш с фильтрами. Буфер цен из одного слота: Add сразу задаёт цену.
func newMarket(t *testing.T, infos ...models.ExchangeSymbolInfo) *cache.Cache {
	t.Helper()
	src := infoSource{}
	for _, i := range infos {
		src[i.Symbol] = i
	}
	c := cache.New(cache.Config{RollingSize: 1, Staleness: time.Minute}, noStats{}, src, nil)
	require.NoError(t, c.RefreshExchangeInfo(context.Background()))
	return c
}

type fakeBalances struct {
	mu sync.Mutex
	m  map[string]models.Balance
}

func newBalances(bs ...models.Balance) *fakeBalances {
	f := &fakeBalances{m: make(map[string]models.Balance)}
	for _, b := range bs {
		f.m[b.Asset] = b
	}
	return f
}

func (f *fakeBalances) GetBalance(asset string) models.Balance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[asset]
}

type seqIDs struct {
	mu sync.Mutex
	n  int64
}

func (s *seqIDs) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

// fakeGateway: place вызывается вместо биржи.
type fakeGateway struct {
	mu    sync.Mutex
	specs []models.ClientOrderSpec
	place func(ctx context.Context, spec models.ClientOrderSpec) (models.OrderResult, error)
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, spec models.ClientOrderSpec) (models.OrderResult, error) {
	g.mu.Lock()
	g.specs = append(g.specs, spec)
	g.mu.Unlock()
	if g.place != nil {
		return g.place(ctx, spec)
	}
	return models.OrderResult{Symbol: spec.Symbol, ClientOrderID: spec.ClientOrderID, Status: models.OrderStatusNew}, nil
}

func (g *fakeGateway) placed() []models.ClientOrderSpec {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.ClientOrderSpec(nil), g.specs...)
}
