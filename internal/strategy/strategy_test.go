package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type statsOpts struct {
	short   float64 // наклон всех коротких окон (3s и 15s семейства)
	slope5m float64
	slope1h float64
	slope3h float64
	ma1h    float64
	ma3h    float64
}

func buildStats(price float64, o statsOpts) models.StatisticsSet {
	set := models.StatisticsSet{}
	for _, spec := range models.Horizons() {
		s := &models.Statistics{Horizon: spec.Horizon, DataBasis: spec.Horizon.MinDataBasis() + 1}
		for i := range s.Averages {
			s.Averages[i] = price
		}
		set[spec.Horizon] = s
	}
	for i := range set[models.Horizon3s].Slopes {
		set[models.Horizon3s].Slopes[i] = o.short
		set[models.Horizon15s].Slopes[i] = o.short
	}
	set[models.Horizon2m].Slopes[0] = o.slope5m
	set[models.Horizon10m].Slopes[2] = o.slope1h
	set[models.Horizon10m].Averages[2] = o.ma1h
	set[models.Horizon2h].Slopes[0] = o.slope3h
	set[models.Horizon2h].Averages[0] = o.ma3h
	return set
}

func TestPanicSellEmittedOnce(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()

	var panics []int
	for i := 0; i <= 40; i++ {
		price := 200 - 0.1*float64(i)
		in := Input{
			Price: price,
			Stats: buildStats(price, statsOpts{short: -1, ma1h: 210, ma3h: 205}),
			Now:   t0.Add(time.Duration(i) * time.Second),
		}
		a := h.Decide(st, in)
		if a == models.ActionPanicSell {
			panics = append(panics, i)
		}
		if len(panics) > 0 && i > panics[0] {
			assert.Equal(t, models.ActionSell, a, "tick %d", i)
		}
	}

	require.Equal(t, []int{11}, panics)
	assert.Equal(t, t0.Add(40*time.Second), st.PanicEnd)
	assert.Equal(t, t0.Add(11*time.Second), st.PanicStart)
}

// fall: 41 тик падения с шагом в секунду, возвращает номера тиков с PanicSell.
func fall(h *Heuristic, st *AnalysisState, start time.Time) []int {
	var panics []int
	for i := 0; i <= 40; i++ {
		price := 200 - 0.1*float64(i)
		a := h.Decide(st, Input{
			Price: price,
			Stats: buildStats(price, statsOpts{short: -1, ma1h: 210, ma3h: 205}),
			Now:   start.Add(time.Duration(i) * time.Second),
		})
		if a == models.ActionPanicSell {
			panics = append(panics, i)
		}
	}
	return panics
}

func TestPanicSellAgainOnlyAfterCooldown(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()

	require.Equal(t, []int{11}, fall(h, st, t0))
	end := st.PanicEnd

	// паника распознаётся ровно через 15 минут после конца прошлой: ещё рано
	start := end.Add(15*time.Minute - 11*time.Second)
	assert.Empty(t, fall(h, st, start))
	assert.Equal(t, t0.Add(11*time.Second), st.PanicStart)
	assert.Equal(t, start.Add(40*time.Second), st.PanicEnd)

	// конец паники сдвинулся: отсчёт идёт от него
	end = st.PanicEnd
	start = end.Add(15*time.Minute - 10*time.Second)
	require.Equal(t, []int{11}, fall(h, st, start))
	assert.Equal(t, end.Add(15*time.Minute+time.Second), st.PanicStart)
}

func TestPanicRequiresSustainedFall(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()

	for i := 0; i <= 20; i++ {
		price := 200 - 0.1*float64(i%5) // каждые 5 секунд цена отскакивает
		a := h.Decide(st, Input{
			Price: price,
			Stats: buildStats(price, statsOpts{short: -1, ma1h: 210, ma3h: 205}),
			Now:   t0.Add(time.Duration(i) * time.Second),
		})
		assert.NotEqual(t, models.ActionPanicSell, a, "tick %d", i)
	}
}

func TestPanicGuardedByThreeHourAverage(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()

	for i := 0; i <= 20; i++ {
		price := 200 - 0.1*float64(i)
		a := h.Decide(st, Input{
			Price: price,
			// средняя за 3ч уже падает: три часа назад линия была около 313
			Stats: buildStats(price, statsOpts{short: -1, ma1h: 210, ma3h: 205, slope3h: -0.01}),
			Now:   t0.Add(time.Duration(i) * time.Second),
		})
		assert.NotEqual(t, models.ActionPanicSell, a)
	}
}

func TestForcedBuyAfterPanicEnded(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()
	st.PanicEnd = t0

	flat := buildStats(200, statsOpts{ma1h: 200, ma3h: 200})

	a := h.Decide(st, Input{Price: 200, Stats: flat, Now: t0.Add(10 * time.Minute)})
	assert.Equal(t, models.ActionHold, a)

	a = h.Decide(st, Input{Price: 200, Stats: flat, Now: t0.Add(15*time.Minute + time.Second)})
	assert.Equal(t, models.ActionBuy, a)

	a = h.Decide(st, Input{Price: 200, Stats: flat, Now: t0.Add(15*time.Minute + 2*time.Second)})
	assert.Equal(t, models.ActionHold, a, "forced buy happens only once per panic")
}

func TestRecoveryBuyAfterPanic(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()
	st.PanicEnd = t0

	rising := buildStats(200, statsOpts{short: 0.02, ma1h: 210, ma3h: 210})

	a := h.Decide(st, Input{Price: 200, Stats: rising, Now: t0.Add(3 * time.Minute)})
	assert.Equal(t, models.ActionHold, a, "too early after panic")

	a = h.Decide(st, Input{Price: 200, Stats: rising, Now: t0.Add(8 * time.Minute)})
	assert.Equal(t, models.ActionBuy, a)
	assert.Equal(t, t0.Add(8*time.Minute), st.BuyAfterPanic)

	a = h.Decide(st, Input{Price: 200, Stats: rising, Now: t0.Add(8*time.Minute + time.Second)})
	assert.Equal(t, models.ActionHold, a)
}

func TestJumpBuyGatedByQuoteShare(t *testing.T) {
	tests := []struct {
		desc  string
		share float64
		want  models.Action
	}{
		{desc: "mostly quote", share: 0.6, want: models.ActionJumpBuy},
		{desc: "exactly half", share: 0.5, want: models.ActionJumpBuy},
		{desc: "mostly base", share: 0.4, want: models.ActionHold},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			h := NewHeuristic(DefaultThresholds())
			st := NewAnalysisState()
			a := h.Decide(st, Input{
				Price:      202,
				Stats:      buildStats(200, statsOpts{short: 1, slope1h: 0.001, ma1h: 200, ma3h: 200}),
				QuoteShare: tc.share,
				Now:        t0,
			})
			assert.Equal(t, tc.want, a)
			assert.True(t, st.Jumping)
		})
	}
}

func TestJumpBuyInterceptGate(t *testing.T) {
	tests := []struct {
		desc string
		ma1h float64
		want models.Action
	}{
		{desc: "reaches falling hourly average soon", ma1h: 1000, want: models.ActionJumpBuy},
		{desc: "too far below hourly average", ma1h: 2000, want: models.ActionHold},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			h := NewHeuristic(DefaultThresholds())
			a := h.Decide(NewAnalysisState(), Input{
				Price:      200,
				Stats:      buildStats(200, statsOpts{short: 1, slope1h: -0.001, ma1h: tc.ma1h, ma3h: tc.ma1h}),
				QuoteShare: 1,
				Now:        t0,
			})
			assert.Equal(t, tc.want, a)
		})
	}
}

func TestTrendCrossing(t *testing.T) {
	tests := []struct {
		desc  string
		price float64
		o     statsOpts
		want  models.Action
	}{
		{desc: "strong buy", price: 200, o: statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01}, want: models.ActionStrongBuy},
		{desc: "buy when averages close", price: 200, o: statsOpts{ma1h: 190, ma3h: 189.9, slope5m: 0.01}, want: models.ActionBuy},
		{desc: "above average but falling", price: 200, o: statsOpts{ma1h: 190, ma3h: 180, slope5m: -0.01}, want: models.ActionHold},
		{desc: "strong sell", price: 180, o: statsOpts{ma1h: 190, ma3h: 200, slope5m: -0.01}, want: models.ActionStrongSell},
		{desc: "sell when averages close", price: 180, o: statsOpts{ma1h: 190, ma3h: 190.05, slope5m: -0.01}, want: models.ActionSell},
		{desc: "below average but rising", price: 180, o: statsOpts{ma1h: 190, ma3h: 200, slope5m: 0.01}, want: models.ActionHold},
		{desc: "on the average", price: 190, o: statsOpts{ma1h: 190, ma3h: 200, slope5m: 0.01}, want: models.ActionHold},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			h := NewHeuristic(DefaultThresholds())
			a := h.Decide(NewAnalysisState(), Input{Price: tc.price, Stats: buildStats(tc.price, tc.o), Now: t0})
			assert.Equal(t, tc.want, a)
		})
	}
}

func TestTakeProfitsDuringRace(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()

	stats := buildStats(200, statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01})
	stats[models.Horizon3s].Slopes[1] = -0.1 // 10s

	a := h.Decide(st, Input{Price: 200, Stats: stats, LowestRecent: 190, Now: t0})
	assert.Equal(t, models.ActionTakeProfitsSell, a)
	assert.True(t, st.Racing)
	assert.Equal(t, t0, st.RaceStart)
}

func TestBuySuppressedAfterRace(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()
	up := buildStats(200, statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01})

	a := h.Decide(st, Input{Price: 200, Stats: up, LowestRecent: 190, Now: t0})
	assert.Equal(t, models.ActionStrongBuy, a, "buying during the race itself is allowed")

	a = h.Decide(st, Input{Price: 200, Stats: up, LowestRecent: 199, Now: t0.Add(time.Minute)})
	assert.Equal(t, models.ActionHold, a)
	assert.False(t, st.Racing)

	a = h.Decide(st, Input{Price: 200, Stats: up, LowestRecent: 199, Now: t0.Add(6 * time.Minute)})
	assert.Equal(t, models.ActionStrongBuy, a)
}

func TestBuySuppressedAfterStrongSell(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()

	a := h.Decide(st, Input{Price: 180, Stats: buildStats(180, statsOpts{ma1h: 190, ma3h: 200, slope5m: -0.01}), Now: t0})
	require.Equal(t, models.ActionStrongSell, a)

	up := buildStats(200, statsOpts{ma1h: 190, ma3h: 189.9, slope5m: 0.01})
	a = h.Decide(st, Input{Price: 200, Stats: up, Now: t0.Add(time.Minute)})
	assert.Equal(t, models.ActionHold, a)

	a = h.Decide(st, Input{Price: 200, Stats: up, Now: t0.Add(3 * time.Minute)})
	assert.Equal(t, models.ActionBuy, a)
}

func TestBuySuppressedOnSteepThirtyMinuteDrop(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	stats := buildStats(200, statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01})
	stats[models.Horizon10m].Slopes[0] = -0.01 // 30m

	a := h.Decide(NewAnalysisState(), Input{Price: 200, Stats: stats, Now: t0})
	assert.Equal(t, models.ActionHold, a)
}

func TestHoldOnMissingOrInvalidStatistics(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())

	missing := buildStats(200, statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01})
	delete(missing, models.Horizon2h)
	assert.Equal(t, models.ActionHold, h.Decide(NewAnalysisState(), Input{Price: 200, Stats: missing, Now: t0}))

	invalid := buildStats(200, statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01})
	invalid[models.Horizon15s].DataBasis = models.Horizon15s.MinDataBasis()
	assert.Equal(t, models.ActionHold, h.Decide(NewAnalysisState(), Input{Price: 200, Stats: invalid, Now: t0}))

	stale := buildStats(200, statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01})
	assert.Equal(t, models.ActionHold, h.Decide(NewAnalysisState(), Input{Price: -1, Stats: stale, Now: t0}))
}

func TestTimestampsNeverMoveBackwards(t *testing.T) {
	st := NewAnalysisState()
	st.Restore(models.DecisionTimes{models.ActionStrongSell: t0})
	st.Restore(models.DecisionTimes{models.ActionStrongSell: t0.Add(-time.Hour)})
	assert.Equal(t, t0, st.LastSeen[models.ActionStrongSell])

	st.PanicEnd = t0
	advance(&st.PanicEnd, t0.Add(-time.Minute))
	assert.Equal(t, t0, st.PanicEnd)
}

func TestRestoreSeedsCooldowns(t *testing.T) {
	h := NewHeuristic(DefaultThresholds())
	st := NewAnalysisState()
	st.Restore(models.DecisionTimes{
		models.ActionPanicSell:       t0,
		models.ActionTakeProfitsSell: t0.Add(-time.Minute),
	})
	assert.Equal(t, t0, st.PanicStart)
	assert.Equal(t, t0, st.PanicEnd)
	assert.Equal(t, t0.Add(-time.Minute), st.RaceEnd)
	assert.True(t, st.BuyAfterPanic.IsZero())

	// паника до рестарта: новая распознаётся, но PanicSell не повторяется
	assert.Empty(t, fall(h, st, t0.Add(time.Minute)))

	st = NewAnalysisState()
	st.Restore(models.DecisionTimes{models.ActionTakeProfitsSell: t0})
	strong := buildStats(200, statsOpts{ma1h: 190, ma3h: 180, slope5m: 0.01})
	assert.Equal(t, models.ActionHold, h.Decide(st, Input{Price: 200, Stats: strong, Now: t0.Add(time.Minute)}))
	assert.Equal(t, models.ActionStrongBuy, h.Decide(st, Input{Price: 200, Stats: strong, Now: t0.Add(6 * time.Minute)}))

	// покупка после паники уже была: принудительной не будет
	st = NewAnalysisState()
	st.Restore(models.DecisionTimes{
		models.ActionPanicSell: t0,
		models.ActionBuy:       t0.Add(8 * time.Minute),
	})
	assert.Equal(t, t0.Add(8*time.Minute), st.BuyAfterPanic)
	flat := buildStats(200, statsOpts{ma1h: 200, ma3h: 200})
	assert.Equal(t, models.ActionHold, h.Decide(st, Input{Price: 200, Stats: flat, Now: t0.Add(16 * time.Minute)}))
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.PanicRecoveryAfter = bad.PanicEndCooldown
	assert.Error(t, bad.Validate())
}
