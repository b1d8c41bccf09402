package models

// ExchangeSymbolInfo: торговые фильтры символа.
// MaxPrice == 0 означает «без ограничения сверху».
type ExchangeSymbolInfo struct {
	Symbol         string
	Status         string
	BaseAsset      string
	QuoteAsset     string
	MinNotional    float64
	MinPrice       float64
	MaxPrice       float64
	TickSize       float64
	MinQty         float64
	MaxQty         float64
	StepSize       float64
	PricePrecision int32
	BasePrecision  int32
}

func (i ExchangeSymbolInfo) Trading() bool { return i.Status == "" || i.Status == "TRADING" }
