package helper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntercept(t *testing.T) {
	tests := []struct {
		desc      string
		a, b      Point
		ok        bool
		wantSec   float64
		wantValue float64
	}{
		{desc: "rising below falling", a: NewPoint(100, 2), b: NewPoint(120, -1), ok: true, wantSec: 20.0 / 3, wantValue: 340.0 / 3},
		{desc: "symmetric", a: NewPoint(120, -1), b: NewPoint(100, 2), ok: true, wantSec: 20.0 / 3, wantValue: 340.0 / 3},
		{desc: "equal slopes", a: NewPoint(100, 1), b: NewPoint(120, 1)},
		{desc: "equal lines", a: NewPoint(100, 1), b: NewPoint(100, 1)},
		{desc: "diverging", a: NewPoint(120, 2), b: NewPoint(100, -1)},
		{desc: "already equal", a: NewPoint(100, 1), b: NewPoint(100, -1), ok: true, wantSec: 0, wantValue: 100},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			at, value, ok := Intercept(tc.a, tc.b)
			require.Equal(t, tc.ok, ok)
			if !tc.ok {
				return
			}
			assert.InDelta(t, tc.wantSec, at.Seconds(), 1e-6)
			assert.InDelta(t, tc.wantValue, value, 1e-6)
		})
	}
}

func TestPointArithmetic(t *testing.T) {
	p := NewPoint(100, 0.5)
	assert.InDelta(t, 130, p.At(time.Minute), 1e-9)
	assert.InDelta(t, 70, p.At(-time.Minute), 1e-9)

	assert.Equal(t, NewPoint(150, 1.5), Add(p, NewPoint(50, 1)))
	assert.Equal(t, NewPoint(200, 1), Scale(p, 2))
	// исходное значение не меняется
	assert.Equal(t, NewPoint(100, 0.5), p)
}

func TestIsCloseAndTouching(t *testing.T) {
	assert.True(t, IsClose(100, 100.1, 0.001))
	assert.False(t, IsClose(100, 100.2, 0.001))
	assert.True(t, IsClose(0, 0, 0.001))

	a, b := NewPoint(100, 2), NewPoint(120, -1)
	assert.True(t, IsTouching(a, b, 10*time.Second))
	assert.False(t, IsTouching(a, b, 5*time.Second))
	assert.False(t, IsTouching(NewPoint(100, 1), NewPoint(120, 1), time.Hour))
}
