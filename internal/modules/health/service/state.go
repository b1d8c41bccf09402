package service

import (
	"sync/atomic"
	"time"
)

// State хранит живость процесса: готовность, связь с потоком биржи, последнее рыночное событие.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds
	team         atomic.Int64
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) SetTeamSize(n int) { s.team.Store(int64(n)) }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

// Snapshot: тело /healthz.
type Snapshot struct {
	Ready        bool  `json:"ready"`
	WSConnected  bool  `json:"wsConnected"`
	UptimeSec    int64 `json:"uptimeSec"`
	LastTickUnix int64 `json:"lastTickUnix"`
	TeamSize     int64 `json:"teamSize"`
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Ready:        s.Ready(),
		WSConnected:  s.WSConnected(),
		UptimeSec:    int64(s.Uptime().Seconds()),
		LastTickUnix: s.lastTickUnix.Load(),
		TeamSize:     s.team.Load(),
	}
}
