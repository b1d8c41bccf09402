package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"trade_engine/internal/models"
	"trade_engine/internal/strategy"
)

type fakeStore struct {
	mu       sync.Mutex
	recs     []models.Recommendation
	lowest   float64
	lowCalls int
	last     models.DecisionTimes
}

func (s *fakeStore) InsertRecommendation(_ context.Context, rec models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *fakeStore) GetLowestPrice(context.Context, string, time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lowCalls++
	return s.lowest, nil
}

func (s *fakeStore) GetLastDecisions(context.Context, string) (models.DecisionTimes, error) {
	return s.last, nil
}

func (s *fakeStore) stored() []models.Recommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Recommendation(nil), s.recs...)
}

func newTestAnalyst(t *testing.T, store *fakeStore, bal *fakeBalances, log *zap.Logger) (*Analyst, *clock) {
	t.Helper()
	market := newMarket(t, btcInfo)
	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	a := NewAnalyst(AnalystConfig{Interval: time.Hour}, strategy.NewHeuristic(strategy.DefaultThresholds()),
		market, bal, store, log)
	a.now = clk.now
	a.symbol = "BTCUSDT"
	return a, clk
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestAnalystHoldsWithoutStatistics(t *testing.T) {
	store := &fakeStore{}
	a, _ := newTestAnalyst(t, store, newBalances(), nil)

	var published []models.Recommendation
	a.Subscribe(func(r models.Recommendation) { published = append(published, r) })

	require.NoError(t, a.Tick(context.Background()))

	require.Len(t, published, 1)
	assert.Equal(t, models.ActionHold, published[0].Action)
	require.Len(t, store.stored(), 1)

	last, ok := a.market.(interface {
		LastRecommendation(string) (models.Recommendation, bool)
	}).LastRecommendation("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, models.ActionHold, last.Action)
}

func TestAnalystLogsOnlyChanges(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a, clk := newTestAnalyst(t, &fakeStore{}, newBalances(), zap.New(core))

	for i := 0; i < 3; i++ {
		require.NoError(t, a.Tick(context.Background()))
		clk.advance(time.Second)
	}

	assert.Equal(t, 1, logs.FilterMessage("recommendation changed").Len())
	assert.Equal(t, 2, logs.FilterMessage("recommendation").FilterLevelExact(zapcore.DebugLevel).Len())
}

func TestAnalystRefreshesLowestPriceSparingly(t *testing.T) {
	store := &fakeStore{lowest: 39000}
	a, clk := newTestAnalyst(t, store, newBalances(), nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Tick(context.Background()))
		clk.advance(time.Second)
	}
	assert.Equal(t, 1, store.lowCalls)

	clk.advance(10 * time.Second)
	require.NoError(t, a.Tick(context.Background()))
	assert.Equal(t, 2, store.lowCalls)
}

func TestAnalystQuoteShare(t *testing.T) {
	cases := []struct {
		name string
		bal  *fakeBalances
		want float64
	}{
		{name: "all quote", bal: newBalances(models.Balance{Asset: "USDT", Free: 100}), want: 1},
		{name: "half", bal: newBalances(models.Balance{Asset: "USDT", Free: 60}, models.Balance{Asset: "BTC", Free: 0.001, Locked: 0.0005}), want: 0.5},
		{name: "empty", bal: newBalances(), want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newTestAnalyst(t, &fakeStore{}, tc.bal, nil)
			assert.InDelta(t, tc.want, a.quoteShare(40000), 1e-9)
		})
	}
}

// spikeStats: цены держались у base, все короткие окна резко растут.
func spikeStats(symbol string, base float64) map[models.Horizon][]models.Statistics {
	out := make(map[models.Horizon][]models.Statistics)
	for _, spec := range models.Horizons() {
		s := models.Statistics{Symbol: symbol, Horizon: spec.Horizon, DataBasis: spec.Horizon.MinDataBasis() + 1}
		for i := range s.Averages {
			s.Averages[i] = base
		}
		if spec.Horizon == models.Horizon3s || spec.Horizon == models.Horizon15s {
			for i := range s.Slopes {
				s.Slopes[i] = base * 0.0003
			}
		}
		if spec.Horizon == models.Horizon10m {
			s.Slopes[2] = 0.001 // часовая средняя не падает
		}
		out[spec.Horizon] = []models.Statistics{s}
	}
	return out
}

func TestAnalystJumpBuyFollowsQuoteShare(t *testing.T) {
	tests := []struct {
		desc string
		bal  *fakeBalances
		want models.Action
	}{
		{
			desc: "more quote than base",
			bal:  newBalances(models.Balance{Asset: "USDT", Free: 60}, models.Balance{Asset: "BTC", Free: 0.001}),
			want: models.ActionJumpBuy,
		},
		{
			desc: "more base than quote",
			bal:  newBalances(models.Balance{Asset: "USDT", Free: 40}, models.Balance{Asset: "BTC", Free: 0.001}),
			want: models.ActionHold,
		},
		{
			desc: "quote only",
			bal:  newBalances(models.Balance{Asset: "USDT", Free: 100}),
			want: models.ActionJumpBuy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			market := newMarket(t, btcInfo)
			for h, snaps := range spikeStats("BTCUSDT", 40000) {
				require.NoError(t, market.SetStatistics(h, snaps))
			}
			// +1% к средним
			market.Add("BTCUSDT", models.SideBid, 40400)

			store := &fakeStore{}
			a := NewAnalyst(AnalystConfig{Interval: time.Hour}, strategy.NewHeuristic(strategy.DefaultThresholds()),
				market, tc.bal, store, nil)
			a.symbol = "BTCUSDT"

			var got []models.Recommendation
			a.Subscribe(func(r models.Recommendation) { got = append(got, r) })
			require.NoError(t, a.Tick(context.Background()))

			require.Len(t, got, 1)
			assert.Equal(t, tc.want, got[0].Action)
			assert.InDelta(t, 40400, got[0].Price, 1e-9)
		})
	}
}

func TestAnalystRestoresDecisionHistory(t *testing.T) {
	at := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	store := &fakeStore{last: models.DecisionTimes{models.ActionStrongSell: at}}
	a, _ := newTestAnalyst(t, store, newBalances(), nil)

	require.NoError(t, a.Start(context.Background(), "BTCUSDT"))
	defer a.Terminate()

	assert.Equal(t, at, a.state.LastSeen[models.ActionStrongSell])
	assert.False(t, a.LastActiveAt().IsZero())
}
