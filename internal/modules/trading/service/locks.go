package service

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locks: по одному торговому замку на символ, общие для всех брокеров и докупки комиссии.
type Locks struct {
	mu    sync.Mutex
	bySym map[string]*semaphore.Weighted
}

func NewLocks() *Locks {
	return &Locks{bySym: make(map[string]*semaphore.Weighted)}
}

// TryLock не ждёт. false, если по символу уже идёт сделка.
func (l *Locks) TryLock(symbol string) (unlock func(), ok bool) {
	l.mu.Lock()
	sem, found := l.bySym[symbol]
	if !found {
		sem = semaphore.NewWeighted(1)
		l.bySym[symbol] = sem
	}
	l.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}
