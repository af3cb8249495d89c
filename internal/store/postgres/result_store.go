package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// ResultStore implements domain.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

const resultSelectCols = `symbol, method, fair_price, mid_price, best_bid, best_ask,
	spread, spread_bps, confidence, bid_volume, ask_volume, imbalance,
	signal, session_id, last_update_id, computed_at`

func scanResultRows(rows pgx.Rows) ([]domain.FairPriceResult, error) {
	var results []domain.FairPriceResult
	for rows.Next() {
		var (
			r            domain.FairPriceResult
			lastUpdateID int64
		)
		if err := rows.Scan(
			&r.Symbol, &r.Method, &r.FairPrice, &r.MidPrice,
			&r.BestBid, &r.BestAsk, &r.Spread, &r.SpreadBps,
			&r.Confidence, &r.BidVolume, &r.AskVolume, &r.Imbalance,
			&r.Signal, &r.SessionID, &lastUpdateID, &r.ComputedAt,
		); err != nil {
			return nil, err
		}
		r.LastUpdateID = uint64(lastUpdateID)
		results = append(results, r)
	}
	return results, rows.Err()
}

// InsertBatch inserts multiple results using a pgx Batch. A result recomputed
// for the same (symbol, session, sequence, method) is silently skipped via
// ON CONFLICT DO NOTHING.
func (s *ResultStore) InsertBatch(ctx context.Context, results []domain.FairPriceResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fair_prices (
			symbol, method, fair_price, mid_price, best_bid, best_ask,
			spread, spread_bps, confidence, bid_volume, ask_volume, imbalance,
			signal, session_id, last_update_id, computed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16
		) ON CONFLICT (symbol, session_id, last_update_id, method) DO NOTHING`

	for _, r := range results {
		batch.Queue(query,
			r.Symbol, string(r.Method), r.FairPrice, r.MidPrice,
			r.BestBid, r.BestAsk, r.Spread, r.SpreadBps,
			r.Confidence, r.BidVolume, r.AskVolume, r.Imbalance,
			string(r.Signal), r.SessionID, int64(r.LastUpdateID), r.ComputedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert result batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBySymbol returns results for a symbol, newest first, with pagination
// and optional time filtering.
func (s *ResultStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.FairPriceResult, error) {
	query := `SELECT ` + resultSelectCols + ` FROM fair_prices WHERE symbol = $1`
	args := []any{symbol}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND computed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND computed_at < $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY computed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results for %s: %w", symbol, err)
	}
	defer rows.Close()

	results, err := scanResultRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan results for %s: %w", symbol, err)
	}
	return results, nil
}

// ListBefore returns all results computed strictly before the cutoff, oldest
// first, for archival.
func (s *ResultStore) ListBefore(ctx context.Context, before time.Time) ([]domain.FairPriceResult, error) {
	query := `SELECT ` + resultSelectCols + ` FROM fair_prices
		WHERE computed_at < $1 ORDER BY computed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	results, err := scanResultRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan results before %s: %w", before.Format(time.RFC3339), err)
	}
	return results, nil
}

// DeleteBefore removes results computed strictly before the cutoff and
// returns the number of deleted rows.
func (s *ResultStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM fair_prices WHERE computed_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete results before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.ResultStore = (*ResultStore)(nil)
