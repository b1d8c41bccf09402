package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Action: тело периодической задачи. Ошибка логируется и не прерывает расписание.
type Action func(ctx context.Context) error

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusSkipped = "skipped"
	statusPanic   = "panic"
)

// Job: действие с защитой от повторного входа.
// Пока предыдущий вызов не завершился, новые вызовы пропускаются без очереди.
type Job struct {
	name   string
	action Action
	log    *zap.Logger
	runs   *prometheus.CounterVec

	sem     *semaphore.Weighted
	skipped atomic.Int64
	invoked atomic.Int64
}

type Option func(*Job)

// WithRunCounter: счётчик с лейблами {job, status}.
func WithRunCounter(c *prometheus.CounterVec) Option {
	return func(j *Job) { j.runs = c }
}

func newJob(name string, action Action, log *zap.Logger, opts ...Option) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	j := &Job{
		name:   name,
		action: action,
		log:    log.With(zap.String("job", name)),
		sem:    semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

func (j *Job) Name() string { return j.name }

// Skipped: сколько тиков пропущено из-за незавершённого предыдущего.
func (j *Job) Skipped() int64 { return j.skipped.Load() }

// Invoked: сколько раз действие реально запускалось.
func (j *Job) Invoked() int64 { return j.invoked.Load() }

// Invoke выполняет действие, если оно не выполняется прямо сейчас.
// Возвращает false, если вызов был пропущен.
func (j *Job) Invoke(ctx context.Context) bool {
	if !j.sem.TryAcquire(1) {
		j.skipped.Add(1)
		j.observe(statusSkipped)
		j.log.Debug("job skipped, previous run still in progress")
		return false
	}
	defer j.sem.Release(1)

	if ctx.Err() != nil {
		return false
	}
	j.invoked.Add(1)

	status := statusSuccess
	defer func() {
		if p := recover(); p != nil {
			status = statusPanic
			j.log.Error("job panicked",
				zap.String("panic", fmt.Sprint(p)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		j.observe(status)
	}()

	if err := j.action(ctx); err != nil {
		status = statusFailed
		if ctx.Err() != nil {
			j.log.Debug("job interrupted by shutdown", zap.Error(err))
			return true
		}
		j.log.Error("job failed", zap.Error(err))
	}
	return true
}

func (j *Job) observe(status string) {
	if j.runs != nil {
		j.runs.WithLabelValues(j.name, status).Inc()
	}
}
