package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/metrics"
	"trade_engine/internal/models"
	"trade_engine/pkg/scheduler"
)

type TeamConfig struct {
	Interval time.Duration
	// StaleAfter: участник, молчащий дольше, перезапускается.
	StaleAfter time.Duration
}

// Factory собирает участников одного символа в порядке запуска.
type Factory func(symbol string) []Member

// Team держит пары аналитик+брокер по символам, разрешённым к торговле.
type Team struct {
	cfg     TeamConfig
	symbols SymbolSource
	ready   ReadySymbols
	factory Factory
	log     *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	members map[string][]Member

	ctx context.Context
	job *scheduler.JobScheduler
}

func NewTeam(cfg TeamConfig, symbols SymbolSource, ready ReadySymbols, factory Factory, log *zap.Logger) *Team {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Team{
		cfg:     cfg,
		symbols: symbols,
		ready:   ready,
		factory: factory,
		log:     log.Named("team"),
		now:     time.Now,
		members: make(map[string][]Member),
	}
}

func (t *Team) Start(ctx context.Context) error {
	t.ctx = ctx
	job, err := scheduler.NewJob(ctx, "trading_team", t.cfg.Interval, t.Reconcile, t.log,
		scheduler.WithRunCounter(metrics.JobRuns))
	if err != nil {
		return err
	}
	t.job = job
	if err := t.Reconcile(ctx); err != nil {
		t.log.Warn("initial reconcile failed", zap.Error(err))
	}
	job.Start()
	return nil
}

// Terminate останавливает сверку и всех участников.
func (t *Team) Terminate() {
	if t.job != nil {
		t.job.Terminate()
	}
	t.mu.Lock()
	all := t.members
	t.members = make(map[string][]Member)
	t.mu.Unlock()

	for _, ms := range all {
		terminate(ms)
	}
	metrics.TeamMembers.Set(0)
}

// Reconcile: лишних и зависших снимаем, недостающих заводим среди готовых символов.
func (t *Team) Reconcile(ctx context.Context) error {
	required, err := t.symbols.GetSymbols(ctx, models.ScopeTrading)
	if err != nil {
		return err
	}
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}
	ready := make(map[string]struct{})
	for _, s := range t.ready.GetSymbols() {
		ready[s] = struct{}{}
	}

	now := t.now()
	var gone []string
	t.mu.Lock()
	for s, ms := range t.members {
		_, keep := want[s]
		if keep && !t.stale(ms, now) {
			continue
		}
		gone = append(gone, s)
	}
	retired := make([][]Member, 0, len(gone))
	for _, s := range gone {
		retired = append(retired, t.members[s])
		delete(t.members, s)
	}
	t.mu.Unlock()

	for i, ms := range retired {
		terminate(ms)
		t.log.Info("member pair removed", zap.String("symbol", gone[i]))
	}

	for _, s := range required {
		if _, ok := ready[s]; !ok || t.has(s) {
			continue
		}
		if err := t.spawn(s); err != nil {
			t.log.Warn("member pair not started", zap.String("symbol", s), zap.Error(err))
		}
	}

	metrics.TeamMembers.Set(float64(len(t.Symbols())))
	return nil
}

func (t *Team) stale(ms []Member, now time.Time) bool {
	if t.cfg.StaleAfter <= 0 {
		return false
	}
	for _, m := range ms {
		if now.Sub(m.LastActiveAt()) > t.cfg.StaleAfter {
			return true
		}
	}
	return false
}

func (t *Team) has(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.members[symbol]
	return ok
}

func (t *Team) spawn(symbol string) error {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ms := t.factory(symbol)
	for i, m := range ms {
		if err := m.Start(ctx, symbol); err != nil {
			terminate(ms[:i])
			return err
		}
	}
	t.mu.Lock()
	t.members[symbol] = ms
	t.mu.Unlock()
	t.log.Info("member pair started", zap.String("symbol", symbol))
	return nil
}

// Symbols: символы с живыми парами.
func (t *Team) Symbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.members))
	for s := range t.members {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// terminate гасит участников в обратном порядке запуска.
func terminate(ms []Member) {
	for i := len(ms) - 1; i >= 0; i-- {
		ms[i].Terminate()
	}
}
