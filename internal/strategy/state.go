package strategy

import (
	"time"

	"trade_engine/internal/models"
)

// AnalysisState: гистерезис одного символа. Принадлежит одному аналитику,
// все отметки времени только растут.
type AnalysisState struct {
	LastSeen map[models.Action]time.Time

	RaceStart, RaceEnd   time.Time
	JumpStart, JumpEnd   time.Time
	PanicStart, PanicEnd time.Time
	BuyAfterPanic        time.Time

	Racing  bool
	Jumping bool

	FallingSince time.Time
	LastPrice    float64
	LastTickAt   time.Time

	Current models.Action
}

func NewAnalysisState() *AnalysisState {
	return &AnalysisState{LastSeen: make(map[models.Action]time.Time)}
}

// Restore поднимает последние отметки действий (например, из истории решений).
// Паника и гонка восстанавливаются по своим решениям, чтобы кулдауны пережили рестарт.
func (s *AnalysisState) Restore(times models.DecisionTimes) {
	for a, t := range times {
		s.markSeen(a, t)
	}
	if t, ok := times[models.ActionPanicSell]; ok {
		advance(&s.PanicStart, t)
		advance(&s.PanicEnd, t)
	}
	if t, ok := times[models.ActionTakeProfitsSell]; ok {
		advance(&s.RaceEnd, t)
	}
	if s.PanicEnd.IsZero() {
		return
	}
	for a, t := range times {
		if a.IsBuy() && t.After(s.PanicEnd) {
			advance(&s.BuyAfterPanic, t)
		}
	}
}

func (s *AnalysisState) markSeen(a models.Action, now time.Time) {
	t := s.LastSeen[a]
	advance(&t, now)
	s.LastSeen[a] = t
}

// PanicEnded: паники не было или с её конца прошло больше cooldown.
func (s *AnalysisState) PanicEnded(now time.Time, cooldown time.Duration) bool {
	return s.PanicEnd.IsZero() || now.Sub(s.PanicEnd) > cooldown
}

// advance двигает отметку только вперёд.
func advance(t *time.Time, now time.Time) {
	if now.After(*t) {
		*t = now
	}
}
