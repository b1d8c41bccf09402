package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/metrics"
	"trade_engine/pkg/scheduler"
)

type (
	Gateway interface {
		Ping(ctx context.Context) error
	}
	Migrator interface {
		Migrate(ctx context.Context) error
	}
	Stream interface {
		Run(ctx context.Context)
		Connected() bool
	}
	Accountant interface {
		Start(ctx context.Context) error
		Stop(ctx context.Context)
	}
	PriceCache interface {
		Start(ctx context.Context) error
		Stop()
	}
	Collector interface {
		Start(ctx context.Context) error
		Stop(ctx context.Context)
	}
	Team interface {
		Start(ctx context.Context) error
		Terminate()
		Symbols() []string
	}
	FeeWatchdog interface {
		Start(ctx context.Context) error
		Stop()
	}
	Health interface {
		SetReady(v bool)
		SetTeamSize(n int)
	}
)

type Config struct {
	// ConnectWait: сколько ждать первого соединения потока перед подписками.
	ConnectWait time.Duration
	// SyncInterval: как часто размер команды уходит в health.
	SyncInterval time.Duration
}

type Parts struct {
	Gateway    Gateway
	Repo       Migrator
	Stream     Stream
	Accountant Accountant
	Cache      PriceCache
	Collector  Collector
	Team       Team
	Fee        FeeWatchdog
	Health     Health
}

// Engine запускает компоненты по порядку и гасит их в обратном.
type Engine struct {
	cfg Config
	p   Parts
	log *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	stream    chan struct{}
	healthJob *scheduler.JobScheduler
	running   bool
	// остановки запущенных компонентов в порядке запуска
	started   []func(context.Context)
}

func New(cfg Config, p Parts, log *zap.Logger) *Engine {
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = 10 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, p: p, log: log.Named("engine")}
}

// Start: шлюз -> схема -> бухгалтер -> кэш цен -> сборщик -> команда -> комиссия -> готов.
// ctx ограничивает только сам запуск, компоненты живут на собственном корневом контексте.
func (e *Engine) Start(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	root, cancel := context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			e.rollback()
			cancel()
			<-e.stream
			err = fmt.Errorf("Engine.Start: %w", err)
		}
	}()
	e.cancel = cancel
	e.stream = closedChan()

	if err = e.p.Gateway.Ping(ctx); err != nil {
		return fmt.Errorf("ping exchange: %w", err)
	}
	if err = e.p.Repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	e.stream = make(chan struct{})
	go func() {
		defer close(e.stream)
		e.p.Stream.Run(root)
	}()
	if !e.waitConnected(ctx) {
		e.log.Warn("stream is not connected yet, subscriptions will be retried", zap.Duration("waited", e.cfg.ConnectWait))
	}

	steps := []struct {
		name  string
		start func(context.Context) error
		stop  func(context.Context)
	}{
		{"accountant", e.p.Accountant.Start, e.p.Accountant.Stop},
		{"price cache", e.p.Cache.Start, func(context.Context) { e.p.Cache.Stop() }},
		{"collector", e.p.Collector.Start, e.p.Collector.Stop},
		{"team", e.p.Team.Start, func(context.Context) { e.p.Team.Terminate() }},
		{"fee watchdog", e.p.Fee.Start, func(context.Context) { e.p.Fee.Stop() }},
	}
	for _, st := range steps {
		if err = st.start(root); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
		e.started = append(e.started, st.stop)
	}

	e.healthJob, err = scheduler.NewJob(root, "health_sync", e.cfg.SyncInterval, e.syncHealth, e.log,
		scheduler.WithRunCounter(metrics.JobRuns))
	if err != nil {
		return err
	}
	e.healthJob.Start()
	_ = e.syncHealth(root)

	e.p.Health.SetReady(true)
	e.running = true
	e.log.Info("engine started")
	return nil
}

// Stop: не готов -> команда -> комиссия -> сборщик -> бухгалтер -> кэш -> корневой контекст.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false

	e.p.Health.SetReady(false)
	if e.healthJob != nil {
		e.healthJob.Terminate()
	}
	e.p.Team.Terminate()
	e.p.Fee.Stop()
	e.p.Collector.Stop(ctx)
	e.p.Accountant.Stop(ctx)
	e.p.Cache.Stop()
	e.p.Health.SetTeamSize(0)
	e.started = nil

	e.cancel()
	select {
	case <-e.stream:
	case <-ctx.Done():
		return fmt.Errorf("Engine.Stop: %w", ctx.Err())
	}
	e.log.Info("engine stopped")
	return nil
}

// rollback гасит в обратном порядке то, что успело стартовать.
func (e *Engine) rollback() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.healthJob != nil {
		e.healthJob.Terminate()
		e.healthJob = nil
	}
	for i := len(e.started) - 1; i >= 0; i-- {
		e.started[i](ctx)
	}
	e.started = nil
}

func (e *Engine) waitConnected(ctx context.Context) bool {
	deadline := time.NewTimer(e.cfg.ConnectWait)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for !e.p.Stream.Connected() {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
	return true
}

func (e *Engine) syncHealth(context.Context) error {
	e.p.Health.SetTeamSize(len(e.p.Team.Symbols()))
	return nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
