package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := New(Config{
		APIKey:            "key",
		APISecret:         "secret",
		RestURL:           srv.URL,
		RecvWindow:        5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		BreakerFailures:   3,
		BreakerTimeout:    time.Minute,
	}, zap.NewNop())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestPlaceOrderSignsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))

		raw := r.URL.RawQuery
		i := strings.LastIndex(raw, "&signature=")
		if !assert.Positive(t, i) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte(raw[:i]))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), raw[i+len("&signature="):])

		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "0.0005", q.Get("quantity"))
		assert.Equal(t, "40000.5", q.Get("price"))
		assert.Equal(t, "IOC", q.Get("timeInForce"))
		assert.Equal(t, "1700000000000", q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))

		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":28,"clientOrderId":"abc","transactTime":1700000000001,"status":"FILLED","executedQty":"0.0005","cummulativeQuoteQty":"20.00025"}`))
	})

	res, err := c.PlaceOrder(context.Background(), models.ClientOrderSpec{
		Symbol:        "BTCUSDT",
		Side:          models.OrderSideBuy,
		Type:          models.OrderTypeLimit,
		Quantity:      0.0005,
		Price:         40000.5,
		TimeInForce:   models.TimeInForceIOC,
		ClientOrderID: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(28), res.OrderID)
	assert.Equal(t, models.OrderStatusFilled, res.Status)
	assert.InDelta(t, 20.00025, res.CumQuote, 1e-9)
}

func TestGetExchangeInfoParsesFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT",
			"filters":[
				{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"1000000.00","tickSize":"0.01"},
				{"filterType":"LOT_SIZE","minQty":"0.0001","maxQty":"9000.0","stepSize":"0.0001"},
				{"filterType":"MAX_NUM_ORDERS","maxNumOrders":200},
				{"filterType":"NOTIONAL","minNotional":"5.00","applyMinToMarket":true}
			]}]}`))
	})

	infos, err := c.GetExchangeInfo(context.Background())
	require.NoError(t, err)

	info, ok := infos["ETHUSDT"]
	require.True(t, ok)
	assert.Equal(t, "ETH", info.BaseAsset)
	assert.Equal(t, "USDT", info.QuoteAsset)
	assert.Equal(t, 5.0, info.MinNotional)
	assert.Equal(t, 0.0001, info.StepSize)
	assert.Equal(t, int32(4), info.BasePrecision)
	assert.Equal(t, int32(2), info.PricePrecision)
	assert.True(t, info.Trading())
}

func TestAPIErrorDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: NOTIONAL"}`))
	})

	for i := 0; i < 5; i++ {
		_, err := c.PlaceOrder(context.Background(), models.ClientOrderSpec{Symbol: "X", Side: models.OrderSideBuy, Type: models.OrderTypeLimit})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, -1013, apiErr.Code)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		assert.Error(t, c.Ping(context.Background()))
	}
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUserSessionRequiresCredentials(t *testing.T) {
	c := New(Config{RestURL: "http://127.0.0.1:1"}, nil)
	_, err := c.StartUserSession(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestUserSessionLifecycle(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		assert.Empty(t, r.URL.Query().Get("signature"))
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"listenKey":"lk-1"}`))
			return
		}
		assert.Equal(t, "lk-1", r.URL.Query().Get("listenKey"))
		_, _ = w.Write([]byte(`{}`))
	})

	ctx := context.Background()
	key, err := c.StartUserSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lk-1", key)
	require.NoError(t, c.KeepAliveUserSession(ctx, key))
	require.NoError(t, c.StopUserSession(ctx, key))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodPost, http.MethodPut, http.MethodDelete}, methods)
}

func TestGetAccountInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"canTrade":true,"updateTime":1700000000000,"balances":[
			{"asset":"USDT","free":"120.5","locked":"0"},{"asset":"BNB","free":"0.01","locked":"0.5"}]}`))
	})

	info, err := c.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, info.CanTrade)
	assert.Equal(t, 120.5, info.Balances["USDT"].Free)
	assert.Equal(t, 0.5, info.Balances["BNB"].Locked)
}
