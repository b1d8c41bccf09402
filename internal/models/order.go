package models

import "time"

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusExpiredInMatch  OrderStatus = "EXPIRED_IN_MATCH"
)

// Terminal: после этих статусов ордер больше не резервирует средства.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired, OrderStatusExpiredInMatch:
		return true
	}
	return false
}

// OpenOrder: резерв количества под отправленный ордер. ID = clientOrderId.
type OpenOrder struct {
	ID         string
	Symbol     string
	QuoteAsset string // в чём зарезервирована сумма покупки
	Side       OrderSide
	Quantity   float64
	Price      float64
	CreatedAt  time.Time
}

func (o OpenOrder) Value() float64 { return o.Quantity * o.Price }

type ClientOrderSpec struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	Price         float64
	TimeInForce   TimeInForce
	ClientOrderID string
}

type OrderResult struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	Status        OrderStatus
	ExecutedQty   float64
	CumQuote      float64
	TransactTime  time.Time
}

// OrderUpdate: executionReport из пользовательского потока.
type OrderUpdate struct {
	Symbol        string
	ClientOrderID string
	OrderID       int64
	Side          OrderSide
	Status        OrderStatus
	ExecType      string
	LastQty       float64
	LastPrice     float64
	CumQty        float64
	CumQuote      float64
	EventTime     time.Time
}
