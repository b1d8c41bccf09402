package strategy

import (
	"errors"
	"time"
)

// Thresholds: подобранные на живом рынке константы эвристики.
// Доли задаются от текущей цены; для дешёвых активов (< CheapPrice) свои значения.
type Thresholds struct {
	CheapPrice float64 `yaml:"cheap_price"`

	PanicSlopeFraction      float64 `yaml:"panic_slope_fraction"`
	PanicSlopeFractionCheap float64 `yaml:"panic_slope_fraction_cheap"`
	JumpSlopeFraction       float64 `yaml:"jump_slope_fraction"`
	JumpSlopeFractionCheap  float64 `yaml:"jump_slope_fraction_cheap"`
	RecoverySlopeFraction   float64 `yaml:"recovery_slope_fraction"`
	TakeProfitSlopeFraction float64 `yaml:"take_profit_slope_fraction"`
	SteepDropFraction30m    float64 `yaml:"steep_drop_fraction_30m"`

	Ma3hGuard      float64       `yaml:"ma3h_guard"`
	FallingFor     time.Duration `yaml:"falling_for"`
	TrendCloseness float64       `yaml:"trend_closeness"`

	RaceFactor      float64       `yaml:"race_factor"`
	RaceFactorCheap float64       `yaml:"race_factor_cheap"`
	RaceLookback    time.Duration `yaml:"race_lookback"`
	RaceCooldown    time.Duration `yaml:"race_cooldown"`

	PanicBuyCooldown   time.Duration `yaml:"panic_buy_cooldown"`
	PanicRecoveryAfter time.Duration `yaml:"panic_recovery_after"`
	PanicEndCooldown   time.Duration `yaml:"panic_end_cooldown"`
	StrongSellCooldown time.Duration `yaml:"strong_sell_cooldown"`

	JumpQuoteShare float64       `yaml:"jump_quote_share"`
	JumpIntercept  time.Duration `yaml:"jump_intercept"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CheapPrice: 100,

		PanicSlopeFraction:      0.00008,
		PanicSlopeFractionCheap: 0.00005,
		JumpSlopeFraction:       0.00006,
		JumpSlopeFractionCheap:  0.00004,
		RecoverySlopeFraction:   0.00004,
		TakeProfitSlopeFraction: 0.0003,
		SteepDropFraction30m:    0.000005,

		Ma3hGuard:      0.9975,
		FallingFor:     10 * time.Second,
		TrendCloseness: 0.001,

		RaceFactor:      0.991,
		RaceFactorCheap: 0.97,
		RaceLookback:    30 * time.Minute,
		RaceCooldown:    5 * time.Minute,

		PanicBuyCooldown:   5 * time.Minute,
		PanicRecoveryAfter: 7 * time.Minute,
		PanicEndCooldown:   15 * time.Minute,
		StrongSellCooldown: 2 * time.Minute,

		JumpQuoteShare: 0.5,
		JumpIntercept:  15 * time.Minute,
	}
}

func (t Thresholds) Validate() error {
	switch {
	case t.PanicSlopeFraction <= 0 || t.PanicSlopeFractionCheap <= 0:
		return errors.New("thresholds: panic slope fractions must be positive")
	case t.JumpSlopeFraction <= 0 || t.JumpSlopeFractionCheap <= 0:
		return errors.New("thresholds: jump slope fractions must be positive")
	case t.RaceFactor <= 0 || t.RaceFactor >= 1 || t.RaceFactorCheap <= 0 || t.RaceFactorCheap >= 1:
		return errors.New("thresholds: race factors must be in (0,1)")
	case t.PanicRecoveryAfter >= t.PanicEndCooldown:
		return errors.New("thresholds: panic recovery must start before panic end cooldown")
	case t.JumpQuoteShare < 0 || t.JumpQuoteShare > 1:
		return errors.New("thresholds: jump quote share must be in [0,1]")
	}
	return nil
}

func (t Thresholds) cheap(price float64) bool { return price < t.CheapPrice }

func (t Thresholds) panicLimit(price float64) float64 {
	if t.cheap(price) {
		return price * t.PanicSlopeFractionCheap
	}
	return price * t.PanicSlopeFraction
}

func (t Thresholds) jumpLimit(price float64) float64 {
	if t.cheap(price) {
		return price * t.JumpSlopeFractionCheap
	}
	return price * t.JumpSlopeFraction
}

func (t Thresholds) raceFactor(price float64) float64 {
	if t.cheap(price) {
		return t.RaceFactorCheap
	}
	return t.RaceFactor
}
