package exchange

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrNotConnected = errors.New("exchange: stream is not connected")

// Handle: подписка на один или несколько потоков, нужна для Unsubscribe.
type Handle struct {
	id      uint64
	Streams []string
}

func (h Handle) Valid() bool { return h.id != 0 }

type route struct {
	handle uint64
	fn     func(data []byte)
}

// Hub: одно combined-соединение (/stream) на все подписки.
// Кадры {"stream":..., "data":...} раздаются по имени потока; после переподключения
// все активные потоки подписываются заново.
type Hub struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger

	// лимит управляющих сообщений биржи: 5 в секунду
	control *rate.Limiter

	mu     sync.RWMutex
	routes map[string]route
	conn   *websocket.Conn

	writeMu sync.Mutex
	seq     atomic.Uint64
	handles atomic.Uint64

	onState func(connected bool)
}

func NewHub(url string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     log.Named("stream"),
		control: rate.NewLimiter(5, 5),
		routes:  make(map[string]route),
	}
}

// OnState: колбэк на подключение/отключение (для health).
func (h *Hub) OnState(fn func(connected bool)) { h.onState = fn }

func (h *Hub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil
}

// Run держит соединение до отмены ctx, переподключаясь с экспоненциальной задержкой.
func (h *Hub) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := h.session(ctx)
		if ctx.Err() != nil {
			return
		}
		h.log.Warn("stream disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (h *Hub) session(ctx context.Context) error {
	conn, _, err := h.dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}

	h.mu.Lock()
	h.conn = conn
	streams := make([]string, 0, len(h.routes))
	for s := range h.routes {
		streams = append(streams, s)
	}
	h.mu.Unlock()
	h.setState(true)

	defer func() {
		h.mu.Lock()
		h.conn = nil
		h.mu.Unlock()
		_ = conn.Close()
		h.setState(false)
	}()

	if len(streams) > 0 {
		if err := h.send(ctx, "SUBSCRIBE", streams); err != nil {
			return errors.Wrap(err, "resubscribe")
		}
		h.log.Info("stream resubscribed", zap.Int("streams", len(streams)))
	}

	// keepalive ping каждые 20s
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				h.writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				h.writeMu.Unlock()
				_ = conn.Close()
				return
			case <-stopPing:
				return
			case <-t.C:
				h.writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				h.writeMu.Unlock()
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		h.dispatch(msg)
	}
}

type frame struct {
	Stream string                 `json:"stream"`
	Data   sonic.NoCopyRawMessage `json:"data"`
	ID     *uint64                `json:"id"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

func (h *Hub) dispatch(msg []byte) {
	var f frame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		h.log.Debug("bad frame", zap.Error(err))
		return
	}
	if f.Error != nil {
		h.log.Error("stream request failed", zap.Int("code", f.Error.Code), zap.String("msg", f.Error.Msg))
		return
	}
	if f.Stream == "" {
		return // ответ на SUBSCRIBE/UNSUBSCRIBE
	}

	h.mu.RLock()
	r, ok := h.routes[f.Stream]
	h.mu.RUnlock()
	if ok {
		r.fn(f.Data)
	}
}

func (h *Hub) send(ctx context.Context, method string, streams []string) error {
	// не больше 200 потоков в одном запросе
	for len(streams) > 0 {
		n := len(streams)
		if n > 200 {
			n = 200
		}
		batch := streams[:n]
		streams = streams[n:]

		if err := h.control.Wait(ctx); err != nil {
			return err
		}
		h.mu.RLock()
		conn := h.conn
		h.mu.RUnlock()
		if conn == nil {
			return ErrNotConnected
		}

		req := map[string]any{"method": method, "params": batch, "id": h.seq.Add(1)}
		h.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := conn.WriteJSON(req)
		h.writeMu.Unlock()
		if err != nil {
			return errors.Wrapf(err, "%s %s", strings.ToLower(method), strings.Join(batch, ","))
		}
	}
	return nil
}

// Subscribe регистрирует обработчик для потоков и отправляет SUBSCRIBE.
// Без соединения подписка не регистрируется и возвращается ErrNotConnected.
func (h *Hub) Subscribe(ctx context.Context, fn func(stream string, data []byte), streams ...string) (Handle, error) {
	if !h.Connected() {
		return Handle{}, ErrNotConnected
	}

	id := h.handles.Add(1)
	h.mu.Lock()
	for _, s := range streams {
		s := s
		h.routes[s] = route{handle: id, fn: func(data []byte) { fn(s, data) }}
	}
	h.mu.Unlock()

	if err := h.send(ctx, "SUBSCRIBE", streams); err != nil {
		h.drop(id, streams)
		return Handle{}, err
	}
	return Handle{id: id, Streams: streams}, nil
}

// Unsubscribe снимает обработчики сразу; UNSUBSCRIBE уходит, если есть соединение.
func (h *Hub) Unsubscribe(ctx context.Context, handle Handle) error {
	if !handle.Valid() {
		return nil
	}
	h.drop(handle.id, handle.Streams)
	if !h.Connected() {
		return nil
	}
	return h.send(ctx, "UNSUBSCRIBE", handle.Streams)
}

func (h *Hub) drop(id uint64, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range streams {
		if r, ok := h.routes[s]; ok && r.handle == id {
			delete(h.routes, s)
		}
	}
}

// Routes: число активных потоков.
func (h *Hub) Routes() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.routes)
}

func (h *Hub) setState(connected bool) {
	if h.onState != nil {
		h.onState(connected)
	}
}
