package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"trade_engine/internal/metrics"
)

var (
	ErrQueueClosed = errors.New("collector: queue is completed")
	ErrQueueFull   = errors.New("collector: queue is full")
)

// Queue: буфер событий одного типа с фиксированным числом обработчиков.
type Queue[T any] struct {
	name    string
	workers int
	handle  func(ctx context.Context, item T) error
	log     *zap.Logger

	mu     sync.RWMutex
	ch     chan T
	closed bool

	wg   conc.WaitGroup
	done chan struct{}

	// сброшено подряд с начала текущего переполнения
	dropped atomic.Int64
}

func NewQueue[T any](name string, capacity, workers int, handle func(context.Context, T) error, log *zap.Logger) *Queue[T] {
	if capacity <= 0 {
		capacity = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue[T]{
		name:    name,
		workers: workers,
		handle:  handle,
		log:     log.With(zap.String("queue", name)),
		ch:      make(chan T, capacity),
		done:    make(chan struct{}),
	}
}

// Start поднимает обработчиков. ctx отменяется только после Drain.
func (q *Queue[T]) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Go(func() {
			for item := range q.ch {
				q.process(ctx, item)
			}
		})
	}
	go func() {
		q.wg.Wait()
		close(q.done)
	}()
}

func (q *Queue[T]) process(ctx context.Context, item T) {
	var err error
	if r := panics.Try(func() { err = q.handle(ctx, item) }); r != nil {
		metrics.EventsDropped.WithLabelValues(q.name).Inc()
		q.log.Error("event handler panic", zap.Any("panic", r.Value), zap.String("stack", string(r.Stack)))
		return
	}
	if err != nil {
		metrics.EventsDropped.WithLabelValues(q.name).Inc()
		q.log.Warn("event not persisted", zap.Error(err))
		return
	}
	metrics.EventsIngested.WithLabelValues(q.name).Inc()
}

// Post не блокирует: переполнение и закрытая очередь возвращают ошибку.
// О переполнении предупреждает один раз на серию потерь.
func (q *Queue[T]) Post(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.EventsDropped.WithLabelValues(q.name).Inc()
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		if n := q.dropped.Swap(0); n > 0 {
			q.log.Info("queue accepts events again", zap.Int64("dropped", n))
		}
		return nil
	default:
		metrics.EventsDropped.WithLabelValues(q.name).Inc()
		if q.dropped.Add(1) == 1 {
			q.log.Warn("queue is full, dropping events", zap.Int("capacity", cap(q.ch)))
		}
		return ErrQueueFull
	}
}

// Complete: новых событий не будет, уже принятые дообработаются.
func (q *Queue[T]) Complete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Drain ждёт обработки принятых событий не дольше wait.
func (q *Queue[T]) Drain(wait time.Duration) bool {
	select {
	case <-q.done:
		return true
	default:
	}
	select {
	case <-q.done:
		return true
	case <-time.After(wait):
		return false
	}
}

func (q *Queue[T]) Len() int { return len(q.ch) }
