package service

import (
	"fmt"

	"trade_engine/internal/models"
)

const (
	insertTickSQL = `
INSERT INTO ticks (symbol, event_time, last_price, open_price, high_price, low_price, volume, quote_volume, price_change_pct)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	// незакрытая свеча приходит много раз, храним последнюю версию
	upsertKlineSQL = `
INSERT INTO klines (symbol, kline_interval, open_time, close_time, open, high, low, close, volume, quote_volume, trades, closed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (symbol, kline_interval, open_time) DO UPDATE SET
    close_time = EXCLUDED.close_time,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume,
    quote_volume = EXCLUDED.quote_volume,
    trades = EXCLUDED.trades,
    closed = EXCLUDED.closed`

	insertBookPriceSQL = `
INSERT INTO book_prices (symbol, update_id, bid, bid_qty, ask, ask_qty, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertRecommendationSQL = `
INSERT INTO recommendations (symbol, action, price, stats, created_at)
VALUES ($1, $2, $3, $4, $5)`

	seedSymbolSQL = `
INSERT INTO symbols (symbol, active_for_collection, active_for_trading)
VALUES ($1, TRUE, TRUE)
ON CONFLICT (symbol) DO NOTHING`

	selectCollectionSymbolsSQL = `SELECT symbol FROM symbols WHERE active_for_collection ORDER BY symbol`
	selectTradingSymbolsSQL    = `SELECT symbol FROM symbols WHERE active_for_trading ORDER BY symbol`

	selectLowestPriceSQL = `
SELECT COALESCE(
    (SELECT min(low) FROM klines WHERE symbol = $1 AND open_time >= $2),
    (SELECT min(bid) FROM book_prices WHERE symbol = $1 AND received_at >= $2)
)`

	selectLastDecisionsSQL = `
SELECT action, max(created_at) FROM recommendations WHERE symbol = $1 GROUP BY action`
)

const (
	bookPriceSource = `SELECT symbol, received_at AS ts, (bid + ask) / 2 AS price
    FROM book_prices WHERE received_at >= $1::timestamptz - make_interval(secs => $2)`
	klineSource = `SELECT symbol, open_time AS ts, close AS price
    FROM klines WHERE kline_interval = '1m' AND open_time >= $1::timestamptz - make_interval(secs => $2)`
)

// statisticsSQL собирает запрос семейства. $1 момент расчёта, $2 глубина выборки,
// $3..$6 окна в секундах. Наклон в цене за секунду.
func statisticsSQL(source models.StatisticsSource) string {
	from := bookPriceSource
	if source == models.SourceKlines {
		from = klineSource
	}
	cols := ""
	for i := 0; i < models.WindowsPerHorizon; i++ {
		cols += fmt.Sprintf(`
    COALESCE(regr_slope(price, extract(epoch FROM ts)) FILTER (WHERE ts >= $1::timestamptz - make_interval(secs => $%d)), 0),
    COALESCE(avg(price) FILTER (WHERE ts >= $1::timestamptz - make_interval(secs => $%d)), 0),`, i+3, i+3)
	}
	return fmt.Sprintf(`
WITH src AS (%s)
SELECT symbol,%s
    COALESCE(extract(epoch FROM max(ts) - min(ts)), 0)::bigint
FROM src
GROUP BY symbol`, from, cols)
}
