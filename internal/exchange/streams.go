package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

type bookTickerFrame struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
}

// У Binance ключи различаются только регистром ("c"/"C"), поэтому
// описываем оба варианта, иначе декодер склеит их без учёта регистра.
type tickerFrame struct {
	Type        string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	Change      string `json:"p"`
	ChangePct   string `json:"P"`
	WeightedAvg string `json:"w"`
	PrevClose   string `json:"x"`
	Last        string `json:"c"`
	CloseTime   int64  `json:"C"`
	LastQty     string `json:"Q"`
	QuoteVolume string `json:"q"`
	Bid         string `json:"b"`
	BidQty      string `json:"B"`
	Ask         string `json:"a"`
	AskQty      string `json:"A"`
	Open        string `json:"o"`
	OpenTime    int64  `json:"O"`
	High        string `json:"h"`
	Low         string `json:"l"`
	LastTradeID int64  `json:"L"`
	Volume      string `json:"v"`
	FirstID     int64  `json:"F"`
	Trades      int64  `json:"n"`
}

type klineFrame struct {
	Type      string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	K         struct {
		OpenTime     int64  `json:"t"`
		CloseTime    int64  `json:"T"`
		Symbol       string `json:"s"`
		Interval     string `json:"i"`
		FirstTradeID int64  `json:"f"`
		LastTradeID  int64  `json:"L"`
		Open         string `json:"o"`
		Close        string `json:"c"`
		High         string `json:"h"`
		Low          string `json:"l"`
		Volume       string `json:"v"`
		Trades       int64  `json:"n"`
		Closed       bool   `json:"x"`
		QuoteVolume  string `json:"q"`
		TakerBase    string `json:"V"`
		TakerQuote   string `json:"Q"`
		Ignore       string `json:"B"`
	} `json:"k"`
}

type userEventHeader struct {
	Type      string `json:"e"`
	EventTime int64  `json:"E"`
}

type accountPositionFrame struct {
	Type       string `json:"e"`
	EventTime  int64  `json:"E"`
	LastUpdate int64  `json:"u"`
	Balances   []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

type executionReportFrame struct {
	Type          string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	Side          string `json:"S"`
	ClientOrderID string `json:"c"`
	OrigClientID  string `json:"C"`
	OrderType     string `json:"o"`
	CreatedAt     int64  `json:"O"`
	TimeInForce   string `json:"f"`
	IcebergQty    string `json:"F"`
	Quantity      string `json:"q"`
	QuoteOrderQty string `json:"Q"`
	Price         string `json:"p"`
	StopPrice     string `json:"P"`
	ExecType      string `json:"x"`
	Status        string `json:"X"`
	OrderID       int64  `json:"i"`
	Ignore        int64  `json:"I"`
	LastQty       string `json:"l"`
	LastPrice     string `json:"L"`
	CumQty        string `json:"z"`
	CumQuote      string `json:"Z"`
	Commission    string `json:"n"`
	CommissionAs  any    `json:"N"`
	TradeTime     int64  `json:"T"`
	TradeID       int64  `json:"t"`
	Working       bool   `json:"w"`
	WorkingTime   int64  `json:"W"`
	Maker         bool   `json:"m"`
	IgnoreM       bool   `json:"M"`
	PreventedID   int64  `json:"v"`
	PreventedQty  string `json:"V"`
}

func ParseBookTicker(data []byte, at time.Time) (models.BookPrice, error) {
	var f bookTickerFrame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return models.BookPrice{}, errors.Wrap(err, "book ticker")
	}
	return models.BookPrice{
		Symbol:     f.Symbol,
		UpdateID:   f.UpdateID,
		Bid:        num(f.Bid),
		BidQty:     num(f.BidQty),
		Ask:        num(f.Ask),
		AskQty:     num(f.AskQty),
		ReceivedAt: at,
	}, nil
}

func ParseTicker(data []byte) (models.Tick, error) {
	var f tickerFrame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return models.Tick{}, errors.Wrap(err, "ticker")
	}
	return models.Tick{
		Symbol:         f.Symbol,
		EventTime:      time.UnixMilli(f.EventTime),
		LastPrice:      num(f.Last),
		OpenPrice:      num(f.Open),
		HighPrice:      num(f.High),
		LowPrice:       num(f.Low),
		Volume:         num(f.Volume),
		QuoteVolume:    num(f.QuoteVolume),
		PriceChangePct: num(f.ChangePct),
	}, nil
}

func ParseKline(data []byte) (models.Kline, error) {
	var f klineFrame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return models.Kline{}, errors.Wrap(err, "kline")
	}
	return models.Kline{
		Symbol:      f.Symbol,
		Interval:    f.K.Interval,
		OpenTime:    time.UnixMilli(f.K.OpenTime),
		CloseTime:   time.UnixMilli(f.K.CloseTime),
		Open:        num(f.K.Open),
		High:        num(f.K.High),
		Low:         num(f.K.Low),
		Close:       num(f.K.Close),
		Volume:      num(f.K.Volume),
		QuoteVolume: num(f.K.QuoteVolume),
		Trades:      f.K.Trades,
		Closed:      f.K.Closed,
	}, nil
}

func parseAccountPosition(data []byte) (models.BalanceUpdate, error) {
	var f accountPositionFrame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return models.BalanceUpdate{}, errors.Wrap(err, "account position")
	}
	u := models.BalanceUpdate{EventTime: time.UnixMilli(f.EventTime), Balances: make([]models.Balance, 0, len(f.Balances))}
	for _, b := range f.Balances {
		u.Balances = append(u.Balances, models.Balance{Asset: b.Asset, Free: num(b.Free), Locked: num(b.Locked)})
	}
	return u, nil
}

func parseExecutionReport(data []byte) (models.OrderUpdate, error) {
	var f executionReportFrame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return models.OrderUpdate{}, errors.Wrap(err, "execution report")
	}
	clientID := f.ClientOrderID
	if f.OrigClientID != "" {
		// при отмене "c": id запроса отмены, исходный id в "C"
		clientID = f.OrigClientID
	}
	return models.OrderUpdate{
		Symbol:        f.Symbol,
		ClientOrderID: clientID,
		OrderID:       f.OrderID,
		Side:          models.OrderSide(f.Side),
		Status:        models.OrderStatus(f.Status),
		ExecType:      f.ExecType,
		LastQty:       num(f.LastQty),
		LastPrice:     num(f.LastPrice),
		CumQty:        num(f.CumQty),
		CumQuote:      num(f.CumQuote),
		EventTime:     time.UnixMilli(f.EventTime),
	}, nil
}

func TickerStream(symbol string) string { return strings.ToLower(symbol) + "@ticker" }

func BookTickerStream(symbol string) string { return strings.ToLower(symbol) + "@bookTicker" }

func KlineStream(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

// SubscribeTicker и остальные Subscribe* декодируют кадры и отдают модели в fn.
// Битые кадры отбрасываются с debug-логом.
func (c *Client) SubscribeTicker(ctx context.Context, symbol string, fn func(models.Tick)) (Handle, error) {
	return c.streams.Subscribe(ctx, func(_ string, data []byte) {
		t, err := ParseTicker(data)
		if err != nil {
			c.log.Debug("drop ticker frame", zap.Error(err))
			return
		}
		fn(t)
	}, TickerStream(symbol))
}

func (c *Client) SubscribeKline(ctx context.Context, symbol, interval string, fn func(models.Kline)) (Handle, error) {
	return c.streams.Subscribe(ctx, func(_ string, data []byte) {
		k, err := ParseKline(data)
		if err != nil {
			c.log.Debug("drop kline frame", zap.Error(err))
			return
		}
		fn(k)
	}, KlineStream(symbol, interval))
}

func (c *Client) SubscribeBookTicker(ctx context.Context, symbol string, fn func(models.BookPrice)) (Handle, error) {
	return c.streams.Subscribe(ctx, func(_ string, data []byte) {
		b, err := ParseBookTicker(data, c.now())
		if err != nil {
			c.log.Debug("drop book ticker frame", zap.Error(err))
			return
		}
		fn(b)
	}, BookTickerStream(symbol))
}

// UserDataHandlers: колбэки пользовательского потока.
type UserDataHandlers struct {
	OnBalance func(models.BalanceUpdate)
	OnOrder   func(models.OrderUpdate)
	// OnExpired: listenKey больше недействителен, событий по нему не будет.
	OnExpired func()
}

func (c *Client) SubscribeUserData(ctx context.Context, listenKey string, h UserDataHandlers) (Handle, error) {
	return c.streams.Subscribe(ctx, func(_ string, data []byte) {
		var hdr userEventHeader
		if err := sonic.Unmarshal(data, &hdr); err != nil {
			c.log.Debug("drop user frame", zap.Error(err))
			return
		}
		switch hdr.Type {
		case "outboundAccountPosition":
			if u, err := parseAccountPosition(data); err == nil && h.OnBalance != nil {
				h.OnBalance(u)
			}
		case "executionReport":
			if u, err := parseExecutionReport(data); err == nil && h.OnOrder != nil {
				h.OnOrder(u)
			}
		case "listenKeyExpired":
			c.log.Warn("listen key expired")
			if h.OnExpired != nil {
				h.OnExpired()
			}
		}
	}, listenKey)
}

func (c *Client) Unsubscribe(ctx context.Context, h Handle) error {
	return c.streams.Unsubscribe(ctx, h)
}
