package service

import "time"

// Stale: цена, которой нельзя пользоваться.
const Stale = -1.0

// RollingPrice: кольцевой буфер последних цен одной стороны стакана.
// Не потокобезопасен: защищается локом кэша.
type RollingPrice struct {
	buf       []float64
	next      int
	updatedAt time.Time
}

func NewRollingPrice(size int) *RollingPrice {
	if size <= 0 {
		size = 10
	}
	return &RollingPrice{buf: make([]float64, size)}
}

// Add кладёт цену в следующий слот.
func (r *RollingPrice) Add(price float64, at time.Time) {
	r.buf[r.next] = price
	r.next = (r.next + 1) % len(r.buf)
	r.updatedAt = at
}

// Average: среднее по всему буферу или Stale, если последняя цена старше maxAge.
// Пока буфер не провернулся, пустые слоты считаются нулями.
func (r *RollingPrice) Average(now time.Time, maxAge time.Duration) float64 {
	if r.updatedAt.IsZero() || now.Sub(r.updatedAt) > maxAge {
		return Stale
	}
	var sum float64
	for _, p := range r.buf {
		sum += p
	}
	return sum / float64(len(r.buf))
}

func (r *RollingPrice) UpdatedAt() time.Time { return r.updatedAt }
