package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"
)

//go:embed schema.sql
var schema string

// lookbackFactor: запас глубины выборки над самым длинным окном семейства.
const lookbackFactor = 1.25

// Repository: хранилище рыночных событий, символов и рекомендаций.
type Repository struct {
	db    db.TxManager
	allow map[string]struct{}
	now   func() time.Time
}

// New: при пустом allow ограничений по символам нет.
func New(tx db.TxManager, allow []string) *Repository {
	r := &Repository{db: tx, now: time.Now}
	if len(allow) > 0 {
		r.allow = make(map[string]struct{}, len(allow))
		for _, s := range allow {
			r.allow[s] = struct{}{}
		}
	}
	return r
}

// Migrate применяет схему и заводит символы из allow-листа.
func (r *Repository) Migrate(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.Migrate: %w", err)
		}
	}()

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		if _, err := tx.Exec(ctxTx, schema); err != nil {
			return err
		}
		for s := range r.allow {
			if _, err := tx.Exec(ctxTx, seedSymbolSQL, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) InsertTick(ctx context.Context, t models.Tick) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.InsertTick: %w", err)
		}
	}()
	_, err = r.db.Conn().Exec(ctx, insertTickSQL,
		t.Symbol, t.EventTime, t.LastPrice, t.OpenPrice, t.HighPrice, t.LowPrice,
		t.Volume, t.QuoteVolume, t.PriceChangePct,
	)
	return err
}

func (r *Repository) InsertKline(ctx context.Context, k models.Kline) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.InsertKline: %w", err)
		}
	}()
	_, err = r.db.Conn().Exec(ctx, upsertKlineSQL,
		k.Symbol, k.Interval, k.OpenTime, k.CloseTime, k.Open, k.High, k.Low, k.Close,
		k.Volume, k.QuoteVolume, k.Trades, k.Closed,
	)
	return err
}

func (r *Repository) InsertBookPrice(ctx context.Context, b models.BookPrice) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.InsertBookPrice: %w", err)
		}
	}()
	_, err = r.db.Conn().Exec(ctx, insertBookPriceSQL,
		b.Symbol, b.UpdateID, b.Bid, b.BidQty, b.Ask, b.AskQty, b.ReceivedAt,
	)
	return err
}

func (r *Repository) InsertRecommendation(ctx context.Context, rec models.Recommendation) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.InsertRecommendation: %w", err)
		}
	}()

	var data []byte
	data, err = sonic.Marshal(rec.Stats)
	if err != nil {
		return err
	}
	_, err = r.db.Conn().Exec(ctx, insertRecommendationSQL,
		rec.Symbol, rec.Action.String(), rec.Price, data, rec.CreatedAt,
	)
	return err
}

// GetSymbols: активные символы в разрезе scope, отфильтрованные allow-листом.
func (r *Repository) GetSymbols(ctx context.Context, scope models.SymbolScope) (out []string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.GetSymbols(%s): %w", scope, err)
		}
	}()

	query := selectCollectionSymbolsSQL
	if scope == models.ScopeTrading {
		query = selectTradingSymbolsSQL
	}
	rows, err := r.db.Conn().Query(ctx, query)
	if err != nil {
		return nil, err
	}
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return r.filter(symbols), nil
}

func (r *Repository) filter(symbols []string) []string {
	if r.allow == nil {
		return symbols
	}
	out := symbols[:0]
	for _, s := range symbols {
		if _, ok := r.allow[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// GetStatistics считает снимки семейства по всем символам в одном read-only снимке базы.
func (r *Repository) GetStatistics(ctx context.Context, h models.Horizon) (out []models.Statistics, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.GetStatistics(%s): %w", h, err)
		}
	}()

	spec, ok := h.Spec()
	if !ok {
		return nil, fmt.Errorf("unknown horizon")
	}
	now := r.now().UTC()
	args := []any{now, spec.Longest().Seconds() * lookbackFactor}
	for _, w := range spec.Windows {
		args = append(args, w.Seconds())
	}

	err = r.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctxTx, statisticsSQL(spec.Source), args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Statistics, error) {
			s := models.Statistics{Horizon: h, ComputedAt: now}
			dest := []any{&s.Symbol}
			for i := 0; i < models.WindowsPerHorizon; i++ {
				dest = append(dest, &s.Slopes[i], &s.Averages[i])
			}
			dest = append(dest, &s.DataBasis)
			return s, row.Scan(dest...)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	filtered := out[:0]
	for _, s := range out {
		if r.allowed(s.Symbol) {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func (r *Repository) allowed(symbol string) bool {
	if r.allow == nil {
		return true
	}
	_, ok := r.allow[symbol]
	return ok
}

// GetLowestPrice: минимальная цена символа с момента since, 0 если данных нет.
func (r *Repository) GetLowestPrice(ctx context.Context, symbol string, since time.Time) (price float64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.GetLowestPrice(%s): %w", symbol, err)
		}
	}()

	var p *float64
	if err = r.db.Conn().QueryRow(ctx, selectLowestPriceSQL, symbol, since).Scan(&p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if p == nil {
		return 0, nil
	}
	return *p, nil
}

// GetLastDecisions: последнее время каждого действия по символу.
func (r *Repository) GetLastDecisions(ctx context.Context, symbol string) (out models.DecisionTimes, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Repository.GetLastDecisions(%s): %w", symbol, err)
		}
	}()

	rows, err := r.db.Conn().Query(ctx, selectLastDecisionsSQL, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out = make(models.DecisionTimes)
	for rows.Next() {
		var (
			name string
			at   time.Time
		)
		if err = rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		action, perr := models.ParseAction(name)
		if perr != nil {
			continue
		}
		out[action] = at
	}
	return out, rows.Err()
}
