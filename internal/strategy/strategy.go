package strategy

import (
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

// Короткие окна, по которым определяются паника и рывок.
var shortWindows = []time.Duration{
	5 * time.Second, 10 * time.Second, 15 * time.Second, 30 * time.Second,
	45 * time.Second, time.Minute, 2 * time.Minute, 3 * time.Minute,
}

// Input: всё, что нужно для одного решения.
type Input struct {
	Price float64
	Stats models.StatisticsSet
	// LowestRecent: минимум цены за RaceLookback, <= 0 если неизвестен.
	LowestRecent float64
	// QuoteShare: доля котируемого актива в стоимости портфеля по символу, 0..1.
	QuoteShare float64
	Now        time.Time
}

// Engine: то, что дёргает аналитик на каждом тике.
type Engine interface {
	Decide(st *AnalysisState, in Input) models.Action
}

type Heuristic struct {
	th Thresholds
}

func NewHeuristic(th Thresholds) *Heuristic {
	return &Heuristic{th: th}
}

func (h *Heuristic) Thresholds() Thresholds { return h.th }

// Decide прогоняет каскад: паника, рывок, пересечение трендов, затем кулдауны.
// Состояние st обновляется на месте.
func (h *Heuristic) Decide(st *AnalysisState, in Input) models.Action {
	now := in.Now
	defer func() {
		st.LastPrice = in.Price
		advance(&st.LastTickAt, now)
	}()

	h.trackFalling(st, in)

	if in.Price <= 0 || !in.Stats.Complete() {
		st.Current = models.ActionHold
		st.markSeen(models.ActionHold, now)
		return models.ActionHold
	}

	action, panicked := h.detectPanic(st, in)
	if !panicked {
		var jumped bool
		action, jumped = h.detectJump(st, in)
		if !jumped {
			action = h.trend(in)
		}
	}

	action = h.cooldowns(st, in, action)

	if action.IsBuy() && !st.PanicEnd.IsZero() {
		advance(&st.BuyAfterPanic, now)
	}
	st.markSeen(action, now)
	st.Current = action
	return action
}

func (h *Heuristic) trackFalling(st *AnalysisState, in Input) {
	switch {
	case st.LastTickAt.IsZero() || st.LastPrice <= 0 || in.Price <= 0:
		st.FallingSince = time.Time{}
	case in.Price < st.LastPrice:
		if st.FallingSince.IsZero() {
			st.FallingSince = st.LastTickAt
		}
	default:
		st.FallingSince = time.Time{}
	}
}

func (h *Heuristic) detectPanic(st *AnalysisState, in Input) (models.Action, bool) {
	limit := h.th.panicLimit(in.Price)
	for _, w := range shortWindows {
		if in.Stats.Slope(w) >= -limit {
			return models.ActionNone, false
		}
	}

	ma3h := helper.NewPoint(in.Stats.Average(3*time.Hour), in.Stats.Slope(3*time.Hour))
	if ma3h.Value < h.th.Ma3hGuard*ma3h.At(-3*time.Hour) {
		return models.ActionNone, false
	}

	if st.FallingSince.IsZero() || in.Now.Sub(st.FallingSince) <= h.th.FallingFor {
		return models.ActionNone, false
	}

	action := models.ActionSell
	if st.PanicEnded(in.Now, h.th.PanicEndCooldown) {
		action = models.ActionPanicSell
		advance(&st.PanicStart, in.Now)
	}
	advance(&st.PanicEnd, in.Now)
	return action, true
}

// detectJump: второй флаг true, если рывок распознан (даже если покупка не разрешена).
func (h *Heuristic) detectJump(st *AnalysisState, in Input) (models.Action, bool) {
	limit := h.th.jumpLimit(in.Price)
	for _, w := range shortWindows {
		if in.Stats.Slope(w) <= limit {
			st.Jumping = false
			return models.ActionNone, false
		}
	}
	slope1m := in.Stats.Slope(time.Minute)
	if slope1m <= 0 {
		st.Jumping = false
		return models.ActionNone, false
	}

	if !st.Jumping {
		advance(&st.JumpStart, in.Now)
	}
	st.Jumping = true
	advance(&st.JumpEnd, in.Now)

	if in.QuoteShare < h.th.JumpQuoteShare {
		return models.ActionHold, true
	}

	slope1h := in.Stats.Slope(time.Hour)
	if slope1h < 0 {
		price := helper.NewPoint(in.Price, slope1m)
		ma1h := helper.NewPoint(in.Stats.Average(time.Hour), slope1h)
		if price.Value < ma1h.Value && !helper.IsTouching(price, ma1h, h.th.JumpIntercept) {
			return models.ActionHold, true
		}
	}
	return models.ActionJumpBuy, true
}

func (h *Heuristic) trend(in Input) models.Action {
	ma1h := in.Stats.Average(time.Hour)
	ma3h := in.Stats.Average(3 * time.Hour)
	slope5m := in.Stats.Slope(5 * time.Minute)
	near := helper.IsClose(ma1h, ma3h, h.th.TrendCloseness)

	switch {
	case in.Price > ma1h:
		if ma1h > ma3h && !near && slope5m > 0 {
			return models.ActionStrongBuy
		}
		if slope5m > 0 {
			return models.ActionBuy
		}
	case in.Price < ma1h:
		if ma1h < ma3h && !near && slope5m < 0 {
			return models.ActionStrongSell
		}
		if slope5m < 0 {
			return models.ActionSell
		}
	}
	return models.ActionHold
}

func (h *Heuristic) cooldowns(st *AnalysisState, in Input, action models.Action) models.Action {
	now := in.Now

	racing := in.LowestRecent > 0 && in.LowestRecent < in.Price*h.th.raceFactor(in.Price)
	if racing {
		if !st.Racing {
			advance(&st.RaceStart, now)
		}
		advance(&st.RaceEnd, now)
		if in.Stats.Slope(10*time.Second) < -in.Price*h.th.TakeProfitSlopeFraction {
			action = models.ActionTakeProfitsSell
		}
	}
	st.Racing = racing

	if action.IsBuy() {
		switch {
		case !racing && !st.RaceEnd.IsZero() && now.Sub(st.RaceEnd) < h.th.RaceCooldown:
			action = models.ActionHold
		case !st.PanicEnd.IsZero() && now.Sub(st.PanicEnd) < h.th.PanicBuyCooldown:
			action = models.ActionHold
		case within(st.LastSeen[models.ActionStrongSell], now, h.th.StrongSellCooldown):
			action = models.ActionHold
		case in.Stats.Slope(30*time.Minute) < -in.Price*h.th.SteepDropFraction30m:
			action = models.ActionHold
		}
	}

	if st.PanicEnd.IsZero() || st.BuyAfterPanic.After(st.PanicEnd) ||
		action == models.ActionPanicSell || action == models.ActionTakeProfitsSell {
		return action
	}

	since := now.Sub(st.PanicEnd)
	switch {
	case since >= h.th.PanicEndCooldown:
		return models.ActionBuy
	case since >= h.th.PanicRecoveryAfter && h.recovering(in):
		return models.ActionBuy
	}
	return action
}

// recovering: короткие наклоны уверенно вверх, а цена ещё под часовой средней.
func (h *Heuristic) recovering(in Input) bool {
	limit := in.Price * h.th.RecoverySlopeFraction
	for _, w := range shortWindows {
		if in.Stats.Slope(w) <= limit {
			return false
		}
	}
	return in.Price < in.Stats.Average(time.Hour)
}

func within(t, now time.Time, d time.Duration) bool {
	return !t.IsZero() && now.Sub(t) < d
}
