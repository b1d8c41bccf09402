package helper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRounding(t *testing.T) {
	assert.InDelta(t, 1.23, RoundDownToTick(1.2399, 0.01), 1e-12)
	assert.InDelta(t, 1.24, RoundUpToTick(1.2301, 0.01), 1e-12)
	assert.InDelta(t, 0.3, RoundDownToTick(0.3, 0.1), 1e-12)
	assert.Equal(t, 5.0, RoundDownToTick(5, 0))

	assert.Equal(t, 19.99, FloorPlaces(19.999, 2))
	assert.Equal(t, 20.0, FloorPlaces(20, 2))
}

func TestPrecisionFromStep(t *testing.T) {
	tests := []struct {
		step float64
		want int32
	}{
		{0.001, 3},
		{0.00001, 5},
		{1, 0},
		{10, 0},
		{0, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, PrecisionFromStep(tc.step), "step %v", tc.step)
	}
}

func TestIntervals(t *testing.T) {
	assert.Equal(t, "1h", NormInterval("60m"))
	assert.Equal(t, "1m", NormInterval(" kline_1M "))
	assert.Equal(t, 15*time.Minute, IntervalDuration("15m"))
	assert.Equal(t, time.Duration(0), IntervalDuration("7m"))
}
