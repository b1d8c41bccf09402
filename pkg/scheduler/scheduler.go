package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrIntervalInvalid = errors.New("scheduler: interval must be positive")

// JobScheduler вызывает Job по таймеру. Каждый тик запускается в своей горутине,
// перекрытия отсекает сам Job.
type JobScheduler struct {
	job      *Job
	interval time.Duration

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopLoop chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// NewJob создаёт планировщик для действия. ctx: корневой токен отмены:
// его отмена останавливает тики и прокидывается в выполняющееся действие.
func NewJob(ctx context.Context, name string, interval time.Duration, action Action, log *zap.Logger, opts ...Option) (*JobScheduler, error) {
	if interval <= 0 {
		return nil, ErrIntervalInvalid
	}
	jctx, cancel := context.WithCancel(ctx)
	return &JobScheduler{
		job:      newJob(name, action, log, opts...),
		interval: interval,
		parent:   ctx,
		ctx:      jctx,
		cancel:   cancel,
	}, nil
}

func (s *JobScheduler) Job() *Job { return s.job }

func (s *JobScheduler) Interval() time.Duration { return s.interval }

// Running: крутится ли цикл тиков.
func (s *JobScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLoop != nil
}

// Start запускает цикл. Повторный Start на работающем планировщике ничего не делает.
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLoop != nil || s.ctx.Err() != nil {
		return
	}
	s.stopLoop = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop(s.stopLoop, s.loopDone)
}

func (s *JobScheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				s.job.Invoke(s.ctx)
			}()
		}
	}
}

// Stop прекращает тики и ждёт завершения уже начатого вызова. Можно снова вызвать Start.
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stopLoop, s.loopDone
	s.stopLoop, s.loopDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	s.inflight.Wait()
}

// Terminate отменяет контекст задачи и останавливает её окончательно.
func (s *JobScheduler) Terminate() {
	s.cancel()
	s.Stop()
}
