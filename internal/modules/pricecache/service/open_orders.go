package service

import "trade_engine/internal/models"

// AddOpenOrder резервирует количество. false: ордер с таким id уже есть.
func (c *Cache) AddOpenOrder(o models.OpenOrder) bool {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()

	if _, ok := c.orders[o.ID]; ok {
		return false
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = c.now()
	}
	c.orders[o.ID] = o
	return true
}

// RemoveOpenOrder снимает резерв. Повторный вызов для того же id вернёт false.
func (c *Cache) RemoveOpenOrder(id string) (models.OpenOrder, bool) {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()

	o, ok := c.orders[id]
	if ok {
		delete(c.orders, id)
	}
	return o, ok
}

// GetOpenOrderValue: зарезервированное количество базового актива по символу и стороне.
func (c *Cache) GetOpenOrderValue(symbol string, side models.OrderSide) float64 {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()

	var qty float64
	for _, o := range c.orders {
		if o.Symbol == symbol && o.Side == side {
			qty += o.Quantity
		}
	}
	return qty
}

// GetOpenOrderNotional: сумма котируемого актива, занятая открытыми покупками
// по всем символам с этим активом.
func (c *Cache) GetOpenOrderNotional(quoteAsset string) float64 {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()

	var sum float64
	for _, o := range c.orders {
		if o.Side == models.OrderSideBuy && o.QuoteAsset == quoteAsset {
			sum += o.Value()
		}
	}
	return sum
}

func (c *Cache) OpenOrders(symbol string) []models.OpenOrder {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()

	var out []models.OpenOrder
	for _, o := range c.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}
