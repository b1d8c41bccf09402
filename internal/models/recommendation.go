package models

import "time"

// Recommendation: опубликованное решение аналитика с копией использованной статистики.
type Recommendation struct {
	Symbol    string                 `json:"symbol"`
	Action    Action                 `json:"action"`
	Price     float64                `json:"price"`
	CreatedAt time.Time              `json:"created_at"`
	Stats     map[Horizon]Statistics `json:"stats"`
}

// NewRecommendation копирует снимки по значению: дальнейшая замена в кэше их не трогает.
func NewRecommendation(symbol string, action Action, price float64, at time.Time, set StatisticsSet) Recommendation {
	stats := make(map[Horizon]Statistics, len(set))
	for h, s := range set {
		if s != nil {
			stats[h] = *s
		}
	}
	return Recommendation{
		Symbol:    symbol,
		Action:    action,
		Price:     price,
		CreatedAt: at,
		Stats:     stats,
	}
}

// DecisionTimes: последнее время каждого действия по символу.
type DecisionTimes map[Action]time.Time
