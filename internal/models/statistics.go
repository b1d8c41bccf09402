package models

import (
	"fmt"
	"time"
)

// Horizon: семейство статистики с разрешением обновления и четыре окна.
type Horizon string

const (
	Horizon3s  Horizon = "3s"
	Horizon15s Horizon = "15s"
	Horizon2m  Horizon = "2m"
	Horizon10m Horizon = "10m"
	Horizon2h  Horizon = "2h"
)

// WindowsPerHorizon: окон (наклон + средняя) в каждом семействе.
const WindowsPerHorizon = 4

// StatisticsSource: откуда семейство берёт цену.
type StatisticsSource int

const (
	SourceBookPrices StatisticsSource = iota
	SourceKlines
)

type HorizonSpec struct {
	Horizon Horizon
	Refresh time.Duration
	Windows [WindowsPerHorizon]time.Duration
	Source  StatisticsSource
}

// Longest: самое длинное окно семейства.
func (s HorizonSpec) Longest() time.Duration { return s.Windows[WindowsPerHorizon-1] }

var horizonSpecs = []HorizonSpec{
	{Horizon: Horizon3s, Refresh: 3 * time.Second, Source: SourceBookPrices,
		Windows: [4]time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 30 * time.Second}},
	{Horizon: Horizon15s, Refresh: 15 * time.Second, Source: SourceBookPrices,
		Windows: [4]time.Duration{45 * time.Second, time.Minute, 2 * time.Minute, 3 * time.Minute}},
	{Horizon: Horizon2m, Refresh: 2 * time.Minute, Source: SourceKlines,
		Windows: [4]time.Duration{5 * time.Minute, 7 * time.Minute, 10 * time.Minute, 15 * time.Minute}},
	{Horizon: Horizon10m, Refresh: 10 * time.Minute, Source: SourceKlines,
		Windows: [4]time.Duration{30 * time.Minute, 45 * time.Minute, time.Hour, 2 * time.Hour}},
	{Horizon: Horizon2h, Refresh: 2 * time.Hour, Source: SourceKlines,
		Windows: [4]time.Duration{3 * time.Hour, 6 * time.Hour, 12 * time.Hour, 24 * time.Hour}},
}

// Horizons: все семейства от короткого к длинному.
func Horizons() []HorizonSpec {
	return append([]HorizonSpec(nil), horizonSpecs...)
}

func (h Horizon) Spec() (HorizonSpec, bool) {
	for _, s := range horizonSpecs {
		if s.Horizon == h {
			return s, true
		}
	}
	return HorizonSpec{}, false
}

// MinDataBasis: порог валидности в секундах истории, равен самому длинному окну.
func (h Horizon) MinDataBasis() int64 {
	s, ok := h.Spec()
	if !ok {
		return 0
	}
	return int64(s.Longest() / time.Second)
}

// HorizonOf находит семейство, которому принадлежит окно.
func HorizonOf(window time.Duration) (Horizon, int, bool) {
	for _, s := range horizonSpecs {
		for i, w := range s.Windows {
			if w == window {
				return s.Horizon, i, true
			}
		}
	}
	return "", 0, false
}

// Statistics: неизменяемый снимок семейства для символа.
// Наклоны в единицах цены за секунду, индексы совпадают с HorizonSpec.Windows.
type Statistics struct {
	Symbol     string                     `json:"symbol"`
	Horizon    Horizon                    `json:"horizon"`
	Slopes     [WindowsPerHorizon]float64 `json:"slopes"`
	Averages   [WindowsPerHorizon]float64 `json:"averages"`
	DataBasis  int64                      `json:"data_basis"`
	ComputedAt time.Time                  `json:"computed_at"`
}

func (s *Statistics) Valid() bool {
	return s != nil && s.DataBasis > s.Horizon.MinDataBasis()
}

func (s *Statistics) index(window time.Duration) (int, error) {
	h, i, ok := HorizonOf(window)
	if !ok || h != s.Horizon {
		return 0, fmt.Errorf("window %s is not part of horizon %s", window, s.Horizon)
	}
	return i, nil
}

func (s *Statistics) Slope(window time.Duration) (float64, error) {
	i, err := s.index(window)
	if err != nil {
		return 0, err
	}
	return s.Slopes[i], nil
}

func (s *Statistics) Average(window time.Duration) (float64, error) {
	i, err := s.index(window)
	if err != nil {
		return 0, err
	}
	return s.Averages[i], nil
}

// StatisticsSet: по одному снимку на семейство для одного символа.
type StatisticsSet map[Horizon]*Statistics

// Complete: все пять семейств на месте и валидны.
func (set StatisticsSet) Complete() bool {
	for _, s := range horizonSpecs {
		if !set[s.Horizon].Valid() {
			return false
		}
	}
	return true
}

// Slope берёт наклон по окну из нужного семейства. Отсутствующее окно: 0.
func (set StatisticsSet) Slope(window time.Duration) float64 {
	h, i, ok := HorizonOf(window)
	if !ok || set[h] == nil {
		return 0
	}
	return set[h].Slopes[i]
}

func (set StatisticsSet) Average(window time.Duration) float64 {
	h, i, ok := HorizonOf(window)
	if !ok || set[h] == nil {
		return 0
	}
	return set[h].Averages[i]
}
