package models

import "time"

type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

type AccountInfo struct {
	Balances  map[string]Balance
	CanTrade  bool
	UpdatedAt time.Time
}

// BalanceUpdate: outboundAccountPosition из пользовательского потока.
type BalanceUpdate struct {
	EventTime time.Time
	Balances  []Balance
}

// TradeVolume: накопленный объём исполнений по символу.
type TradeVolume struct {
	Symbol      string
	BoughtBase  float64
	BoughtQuote float64
	SoldBase    float64
	SoldQuote   float64
	Trades      int
}
