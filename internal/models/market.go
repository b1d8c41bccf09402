package models

import "time"

type PriceSide int

const (
	SideBid PriceSide = iota
	SideAsk
)

func (s PriceSide) String() string {
	if s == SideAsk {
		return "ask"
	}
	return "bid"
}

// Tick: 24h-статистика по символу (<symbol>@ticker).
type Tick struct {
	Symbol         string
	EventTime      time.Time
	LastPrice      float64
	OpenPrice      float64
	HighPrice      float64
	LowPrice       float64
	Volume         float64
	QuoteVolume    float64
	PriceChangePct float64
}

type Kline struct {
	Symbol      string
	Interval    string
	OpenTime    time.Time
	CloseTime   time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Trades      int64
	Closed      bool
}

// BookPrice: лучшие bid/ask (<symbol>@bookTicker).
type BookPrice struct {
	Symbol     string
	UpdateID   int64
	Bid        float64
	BidQty     float64
	Ask        float64
	AskQty     float64
	ReceivedAt time.Time
}

func (b BookPrice) Mid() float64 { return (b.Bid + b.Ask) / 2 }

type SymbolScope int

const (
	ScopeCollection SymbolScope = iota
	ScopeTrading
)

func (s SymbolScope) String() string {
	if s == ScopeTrading {
		return "trading"
	}
	return "collection"
}
