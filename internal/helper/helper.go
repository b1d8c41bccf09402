package helper

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormInterval приводит интервал свечей к виду биржи ("60m" -> "1h").
func NormInterval(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "kline_")
	switch s {
	case "60m":
		return "1h"
	case "240m":
		return "4h"
	case "1440m", "24h":
		return "1d"
	default:
		return s
	}
}

// IntervalDuration: длительность интервала свечи, 0 для неизвестных.
func IntervalDuration(interval string) time.Duration {
	switch NormInterval(interval) {
	case "1s":
		return time.Second
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	d := decimal.NewFromFloat(px).Div(decimal.NewFromFloat(tick)).Floor()
	return d.Mul(decimal.NewFromFloat(tick)).InexactFloat64()
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	d := decimal.NewFromFloat(px).Div(decimal.NewFromFloat(tick)).Ceil()
	return d.Mul(decimal.NewFromFloat(tick)).InexactFloat64()
}

// FloorPlaces отбрасывает всё после places знаков (всегда вниз).
func FloorPlaces(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).RoundFloor(places).InexactFloat64()
}

// PrecisionFromStep: 0.001 -> 3, 1 -> 0, 10 -> 0.
func PrecisionFromStep(step float64) int32 {
	if step <= 0 {
		return 0
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}
