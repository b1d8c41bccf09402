package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNameEmpty     = errors.New("scheduler: job name is empty")
	ErrHandlerNil    = errors.New("scheduler: job handler is nil")
	ErrAlreadyExists = errors.New("scheduler: job already registered")
	ErrStarted       = errors.New("scheduler: manager already started")
)

// Registration: явная запись реестра (имя, интервал, обработчик).
type Registration struct {
	Name     string
	Interval time.Duration
	Handler  Action
}

// JobManager владеет группой планировщиков и управляет ими целиком.
type JobManager struct {
	log  *zap.Logger
	opts []Option

	mu         sync.Mutex
	regs       []Registration
	schedulers []*JobScheduler
}

func NewJobManager(log *zap.Logger, opts ...Option) *JobManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobManager{log: log, opts: opts}
}

func (m *JobManager) Register(regs ...Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.schedulers != nil {
		return ErrStarted
	}
	for _, r := range regs {
		switch {
		case r.Name == "":
			return ErrNameEmpty
		case r.Handler == nil:
			return fmt.Errorf("%w: %s", ErrHandlerNil, r.Name)
		case r.Interval <= 0:
			return fmt.Errorf("%w: %s", ErrIntervalInvalid, r.Name)
		}
		for _, existing := range m.regs {
			if existing.Name == r.Name {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, r.Name)
			}
		}
		m.regs = append(m.regs, r)
	}
	return nil
}

// Start создаёт планировщики под ctx (при первом вызове) и запускает их.
func (m *JobManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.schedulers == nil {
		m.schedulers = make([]*JobScheduler, 0, len(m.regs))
		for _, r := range m.regs {
			s, err := NewJob(ctx, r.Name, r.Interval, r.Handler, m.log, m.opts...)
			if err != nil {
				return err
			}
			m.schedulers = append(m.schedulers, s)
		}
	}
	for _, s := range m.schedulers {
		s.Start()
	}
	m.log.Debug("jobs started", zap.Int("count", len(m.schedulers)))
	return nil
}

func (m *JobManager) Stop() {
	for _, s := range m.snapshot() {
		s.Stop()
	}
}

func (m *JobManager) Terminate() {
	for _, s := range m.snapshot() {
		s.Terminate()
	}
}

// Lookup возвращает планировщик по имени (после Start).
func (m *JobManager) Lookup(name string) (*JobScheduler, bool) {
	for _, s := range m.snapshot() {
		if s.job.name == name {
			return s, true
		}
	}
	return nil, false
}

func (m *JobManager) snapshot() []*JobScheduler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*JobScheduler(nil), m.schedulers...)
}
