package exchange

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
)

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: "/api/v3/ping"}, nil)
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	MinPrice    string `json:"minPrice"`
	MaxPrice    string `json:"maxPrice"`
	TickSize    string `json:"tickSize"`
	MinQty      string `json:"minQty"`
	MaxQty      string `json:"maxQty"`
	StepSize    string `json:"stepSize"`
	MinNotional string `json:"minNotional"`
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string         `json:"symbol"`
		Status     string         `json:"status"`
		BaseAsset  string         `json:"baseAsset"`
		QuoteAsset string         `json:"quoteAsset"`
		Filters    []symbolFilter `json:"filters"`
	} `json:"symbols"`
}

// GetExchangeInfo: фильтры по всем символам (или только по указанным).
func (c *Client) GetExchangeInfo(ctx context.Context, symbols ...string) (map[string]models.ExchangeSymbolInfo, error) {
	params := url.Values{}
	weight := 20
	if len(symbols) > 0 {
		params.Set("symbols", `["`+strings.Join(symbols, `","`)+`"]`)
		weight = 2
	}

	var resp exchangeInfoResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v3/exchangeInfo", params: params, weight: weight}, &resp); err != nil {
		return nil, errors.Wrap(err, "binance: exchange info")
	}

	out := make(map[string]models.ExchangeSymbolInfo, len(resp.Symbols))
	for _, s := range resp.Symbols {
		info := models.ExchangeSymbolInfo{
			Symbol:     s.Symbol,
			Status:     s.Status,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				info.MinPrice = num(f.MinPrice)
				info.MaxPrice = num(f.MaxPrice)
				info.TickSize = num(f.TickSize)
			case "LOT_SIZE":
				info.MinQty = num(f.MinQty)
				info.MaxQty = num(f.MaxQty)
				info.StepSize = num(f.StepSize)
			case "NOTIONAL", "MIN_NOTIONAL":
				if v := num(f.MinNotional); v > info.MinNotional {
					info.MinNotional = v
				}
			}
		}
		info.PricePrecision = helper.PrecisionFromStep(info.TickSize)
		info.BasePrecision = helper.PrecisionFromStep(info.StepSize)
		out[s.Symbol] = info
	}
	return out, nil
}

type accountResponse struct {
	CanTrade   bool  `json:"canTrade"`
	UpdateTime int64 `json:"updateTime"`
	Balances   []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

func (c *Client) GetAccountInfo(ctx context.Context) (models.AccountInfo, error) {
	params := url.Values{}
	params.Set("omitZeroBalances", "true")

	var resp accountResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/v3/account", params: params, signed: true, weight: 20}, &resp); err != nil {
		return models.AccountInfo{}, errors.Wrap(err, "binance: account")
	}

	info := models.AccountInfo{
		Balances:  make(map[string]models.Balance, len(resp.Balances)),
		CanTrade:  resp.CanTrade,
		UpdatedAt: time.UnixMilli(resp.UpdateTime),
	}
	for _, b := range resp.Balances {
		info.Balances[b.Asset] = models.Balance{Asset: b.Asset, Free: num(b.Free), Locked: num(b.Locked)}
	}
	return info, nil
}

func (c *Client) StartUserSession(ctx context.Context) (string, error) {
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/v3/userDataStream", apiKey: true, weight: 2}, &resp); err != nil {
		return "", errors.Wrap(err, "binance: start user session")
	}
	if resp.ListenKey == "" {
		return "", errors.New("binance: empty listen key")
	}
	return resp.ListenKey, nil
}

func (c *Client) KeepAliveUserSession(ctx context.Context, key string) error {
	params := url.Values{}
	params.Set("listenKey", key)
	return errors.Wrap(
		c.do(ctx, request{method: http.MethodPut, path: "/api/v3/userDataStream", params: params, apiKey: true, weight: 2}, nil),
		"binance: keep alive user session",
	)
}

func (c *Client) StopUserSession(ctx context.Context, key string) error {
	params := url.Values{}
	params.Set("listenKey", key)
	return errors.Wrap(
		c.do(ctx, request{method: http.MethodDelete, path: "/api/v3/userDataStream", params: params, apiKey: true, weight: 2}, nil),
		"binance: stop user session",
	)
}

type orderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	CumQuote      string `json:"cummulativeQuoteQty"`
}

// PlaceOrder отправляет ордер. Отмена ctx прерывает ожидание ответа.
func (c *Client) PlaceOrder(ctx context.Context, spec models.ClientOrderSpec) (models.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", spec.Symbol)
	params.Set("side", string(spec.Side))
	params.Set("type", string(spec.Type))
	params.Set("quantity", formatNum(spec.Quantity))
	if spec.Type == models.OrderTypeLimit {
		params.Set("price", formatNum(spec.Price))
		tif := spec.TimeInForce
		if tif == "" {
			tif = models.TimeInForceGTC
		}
		params.Set("timeInForce", string(tif))
	}
	if spec.ClientOrderID != "" {
		params.Set("newClientOrderId", spec.ClientOrderID)
	}
	params.Set("newOrderRespType", "RESULT")

	var resp orderResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/v3/order", params: params, signed: true, weight: 1}, &resp); err != nil {
		return models.OrderResult{}, errors.Wrapf(err, "binance: place order %s %s", spec.Side, spec.Symbol)
	}
	return models.OrderResult{
		Symbol:        resp.Symbol,
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Status:        models.OrderStatus(resp.Status),
		ExecutedQty:   num(resp.ExecutedQty),
		CumQuote:      num(resp.CumQuote),
		TransactTime:  time.UnixMilli(resp.TransactTime),
	}, nil
}
