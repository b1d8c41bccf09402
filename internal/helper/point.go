package helper

import (
	"math"
	"time"
)

// Point: значение ценовой линии в момент t=0 и её наклон в единицах цены за секунду.
type Point struct {
	Value float64
	Slope float64
}

func NewPoint(value, slope float64) Point { return Point{Value: value, Slope: slope} }

// At: значение линии через dt (отрицательный dt смотрит в прошлое).
func (p Point) At(dt time.Duration) float64 {
	return p.Value + p.Slope*dt.Seconds()
}

func Add(a, b Point) Point {
	return Point{Value: a.Value + b.Value, Slope: a.Slope + b.Slope}
}

func Scale(p Point, k float64) Point {
	return Point{Value: p.Value * k, Slope: p.Slope * k}
}

// Intercept ищет момент в будущем, когда линии a и b сравняются.
// ok=false для параллельных линий и для пересечения в прошлом.
func Intercept(a, b Point) (at time.Duration, value float64, ok bool) {
	ds := a.Slope - b.Slope
	if ds == 0 {
		return 0, 0, false
	}
	t := (b.Value - a.Value) / ds
	if t < 0 || math.IsInf(t, 0) || math.IsNaN(t) {
		return 0, 0, false
	}
	return time.Duration(t * float64(time.Second)), a.Value + a.Slope*t, true
}

// IsClose: относительная близость двух значений, |a-b| <= tol*max(|a|,|b|).
func IsClose(a, b, tol float64) bool {
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= tol*scale
}

// IsTouching: линии сходятся не позже чем через within.
func IsTouching(a, b Point, within time.Duration) bool {
	at, _, ok := Intercept(a, b)
	return ok && at <= within
}
