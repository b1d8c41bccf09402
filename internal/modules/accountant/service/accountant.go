package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade_engine/internal/exchange"
	"trade_engine/internal/metrics"
	"trade_engine/internal/models"
	"trade_engine/internal/notify"
	"trade_engine/pkg/scheduler"
)

type Gateway interface {
	GetAccountInfo(ctx context.Context) (models.AccountInfo, error)
	StartUserSession(ctx context.Context) (string, error)
	KeepAliveUserSession(ctx context.Context, key string) error
	StopUserSession(ctx context.Context, key string) error
	SubscribeUserData(ctx context.Context, listenKey string, h exchange.UserDataHandlers) (exchange.Handle, error)
	Unsubscribe(ctx context.Context, h exchange.Handle) error
}

// OrderBook: резервы открытых ордеров в кэше.
type OrderBook interface {
	RemoveOpenOrder(id string) (models.OpenOrder, bool)
}

type Config struct {
	ResyncInterval    time.Duration
	KeepAliveInterval time.Duration
}

// Accountant держит балансы аккаунта и снимает резервы по завершённым ордерам.
type Accountant struct {
	cfg    Config
	gw     Gateway
	orders OrderBook
	notify notify.Notifier
	log    *zap.Logger

	mu       sync.RWMutex
	balances map[string]models.Balance
	canTrade bool
	synced   time.Time

	volMu   sync.Mutex
	volumes map[string]*models.TradeVolume

	sessMu    sync.Mutex
	listenKey string
	handle    exchange.Handle
	closed    bool

	jobs *scheduler.JobManager
}

func New(cfg Config, gw Gateway, orders OrderBook, n notify.Notifier, log *zap.Logger) *Accountant {
	if log == nil {
		log = zap.NewNop()
	}
	if n == nil {
		n = notify.NewLog(log)
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = time.Minute
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 30 * time.Minute
	}
	return &Accountant{
		cfg:      cfg,
		gw:       gw,
		orders:   orders,
		notify:   n,
		log:      log.Named("accountant"),
		balances: make(map[string]models.Balance),
		volumes:  make(map[string]*models.TradeVolume),
	}
}

func (a *Accountant) Start(ctx context.Context) error {
	a.sessMu.Lock()
	a.closed = false
	a.sessMu.Unlock()

	if err := a.Resync(ctx); err != nil {
		a.log.Warn("initial balance sync failed", zap.Error(err))
	}
	if err := a.openSession(ctx); err != nil {
		a.log.Warn("user data stream unavailable", zap.Error(err))
	}

	jobs := scheduler.NewJobManager(a.log, scheduler.WithRunCounter(metrics.JobRuns))
	err := jobs.Register(
		scheduler.Registration{Name: "account_resync", Interval: a.cfg.ResyncInterval, Handler: a.Resync},
		scheduler.Registration{Name: "user_session_keepalive", Interval: a.cfg.KeepAliveInterval, Handler: a.keepAlive},
	)
	if err != nil {
		return err
	}
	a.jobs = jobs
	return jobs.Start(ctx)
}

// Stop гасит задачи и закрывает пользовательскую сессию.
func (a *Accountant) Stop(ctx context.Context) {
	if a.jobs != nil {
		a.jobs.Terminate()
	}

	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	a.closed = true

	if a.handle.Valid() {
		if err := a.gw.Unsubscribe(ctx, a.handle); err != nil {
			a.log.Debug("unsubscribe user data", zap.Error(err))
		}
		a.handle = exchange.Handle{}
	}
	if a.listenKey != "" {
		if err := a.gw.StopUserSession(ctx, a.listenKey); err != nil {
			a.log.Warn("stop user session", zap.Error(err))
		}
		a.listenKey = ""
	}
}

// Resync заменяет снимок балансов целиком.
func (a *Accountant) Resync(ctx context.Context) error {
	info, err := a.gw.GetAccountInfo(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.balances = make(map[string]models.Balance, len(info.Balances))
	for asset, b := range info.Balances {
		a.balances[asset] = b
	}
	a.canTrade = info.CanTrade
	a.synced = info.UpdatedAt
	a.mu.Unlock()
	return nil
}

func (a *Accountant) openSession(ctx context.Context) error {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	if a.closed || a.listenKey != "" {
		return nil
	}

	key, err := a.gw.StartUserSession(ctx)
	if err != nil {
		return err
	}
	h, err := a.gw.SubscribeUserData(ctx, key, exchange.UserDataHandlers{
		OnBalance: a.OnBalance,
		OnOrder:   a.OnOrder,
		OnExpired: func() { a.expire(key) },
	})
	if err != nil {
		_ = a.gw.StopUserSession(ctx, key)
		return err
	}
	a.listenKey = key
	a.handle = h
	a.log.Info("user data stream subscribed")
	return nil
}

// keepAlive продлевает listenKey. Нет сессии: пробуем открыть заново.
func (a *Accountant) keepAlive(ctx context.Context) error {
	a.sessMu.Lock()
	key := a.listenKey
	a.sessMu.Unlock()

	if key == "" {
		err := a.openSession(ctx)
		if errors.Is(err, exchange.ErrNoCredential) {
			return nil
		}
		return err
	}

	err := a.gw.KeepAliveUserSession(ctx, key)
	var apiErr *exchange.APIError
	if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
		return err
	}
	// биржа не знает ключ: сессия мертва, открываем новую
	a.log.Warn("listen key rejected, reopening user data stream", zap.Error(err))
	a.dropSession(ctx, key)
	return a.openSession(ctx)
}

// expire: биржа закрыла listenKey. Новую сессию открываем сразу, не дожидаясь keepAlive.
func (a *Accountant) expire(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !a.dropSession(ctx, key) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.openSession(ctx); err != nil {
			a.log.Warn("reopen user data stream, keep-alive will retry", zap.Error(err))
		}
	}()
}

// dropSession забывает сессию key, если она ещё текущая. Закрывать ключ на бирже уже незачем.
func (a *Accountant) dropSession(ctx context.Context, key string) bool {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	if key == "" || a.listenKey != key {
		return false
	}
	if err := a.gw.Unsubscribe(ctx, a.handle); err != nil {
		a.log.Debug("unsubscribe user data", zap.Error(err))
	}
	a.handle = exchange.Handle{}
	a.listenKey = ""
	metrics.UserSessionResets.Inc()
	return true
}

// OnBalance применяет outboundAccountPosition поверх снимка.
func (a *Accountant) OnBalance(u models.BalanceUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range u.Balances {
		a.balances[b.Asset] = b
	}
}

// OnOrder копит объём исполнений и снимает резерв по завершённому ордеру.
func (a *Accountant) OnOrder(u models.OrderUpdate) {
	if u.ExecType == "TRADE" && u.LastQty > 0 {
		a.addVolume(u)
	}
	if !u.Status.Terminal() {
		return
	}
	o, ok := a.orders.RemoveOpenOrder(u.ClientOrderID)
	if !ok {
		return
	}
	a.log.Info("order finished",
		zap.String("symbol", u.Symbol),
		zap.String("side", string(u.Side)),
		zap.String("status", string(u.Status)),
		zap.Float64("reserved", o.Quantity),
		zap.Float64("executed", u.CumQty),
	)
	if u.Status == models.OrderStatusFilled {
		a.notify.Sendf("%s %s filled: qty %g, quote %g", u.Side, u.Symbol, u.CumQty, u.CumQuote)
	}
}

func (a *Accountant) addVolume(u models.OrderUpdate) {
	a.volMu.Lock()
	defer a.volMu.Unlock()

	v, ok := a.volumes[u.Symbol]
	if !ok {
		v = &models.TradeVolume{Symbol: u.Symbol}
		a.volumes[u.Symbol] = v
	}
	quote := u.LastQty * u.LastPrice
	if u.Side == models.OrderSideBuy {
		v.BoughtBase += u.LastQty
		v.BoughtQuote += quote
	} else {
		v.SoldBase += u.LastQty
		v.SoldQuote += quote
	}
	v.Trades++
}

func (a *Accountant) TradeVolume(symbol string) models.TradeVolume {
	a.volMu.Lock()
	defer a.volMu.Unlock()
	if v, ok := a.volumes[symbol]; ok {
		return *v
	}
	return models.TradeVolume{Symbol: symbol}
}

// GetBalance: баланс актива, нулевой если актива нет.
func (a *Accountant) GetBalance(asset string) models.Balance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if b, ok := a.balances[asset]; ok {
		return b
	}
	return models.Balance{Asset: asset}
}

func (a *Accountant) SyncedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.synced
}

func (a *Accountant) CanTrade() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.canTrade
}
