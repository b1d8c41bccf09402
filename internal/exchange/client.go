package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrBreakerOpen  = errors.New("exchange: circuit breaker is open")
	ErrNoCredential = errors.New("exchange: api key/secret are empty")
)

type Config struct {
	APIKey            string
	APISecret         string
	RestURL           string
	StreamURL         string
	RecvWindow        time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
}

// APIError: ответ биржи вида {"code":-1013,"msg":"..."}.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: http %d code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// clientFault: ошибка запроса, а не биржи. На брейкер не влияет.
func clientFault(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests && apiErr.Status != http.StatusTeapot
	}
	return false
}

// Client: REST + поток Binance spot.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
	now     func() time.Time

	streams *Hub
}

func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	log = log.Named("binance")

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:     log,
		now:     time.Now,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "binance-rest",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	c.streams = NewHub(cfg.StreamURL, log)
	return c
}

// Streams: общий мультиплексированный поток.
func (c *Client) Streams() *Hub { return c.streams }

type request struct {
	method string
	path   string
	params url.Values
	signed bool
	apiKey bool
	weight int
}

func (c *Client) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if (r.signed || r.apiKey) && (c.cfg.APIKey == "" || c.cfg.APISecret == "") {
		return ErrNoCredential
	}
	weight := r.weight
	if weight <= 0 {
		weight = 1
	}
	if err := c.limiter.WaitN(ctx, weight); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, r, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request, out any) error {
	params := r.params
	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if r.signed {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		if c.cfg.RecvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
		}
		query = params.Encode()
		query += "&signature=" + c.sign(query)
	}

	u := c.cfg.RestURL + r.path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, nil)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", r.method, r.path)
	}
	if r.signed || r.apiKey {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", r.method, r.path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s", r.path)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if uerr := sonic.Unmarshal(body, apiErr); uerr != nil || apiErr.Msg == "" {
			apiErr.Msg = string(body)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(sonic.Unmarshal(body, out), "decode %s", r.path)
}

func num(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
