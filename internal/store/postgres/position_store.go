package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantish/rangemaker/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert inserts or updates one (market, user, bucket) row.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, user_id, bucket, shares, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (market_id, user_id, bucket)
		DO UPDATE SET shares = EXCLUDED.shares, updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, p.MarketID, p.User, p.Bucket, p.Shares)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s/%d: %w", p.MarketID, p.User, p.Bucket, err)
	}
	return nil
}

// ReplaceMarket swaps every position row of a market in one transaction.
// Bucket indices are only meaningful against the current grid, so after a
// split the whole market is rewritten rather than patched row by row.
func (s *PositionStore) ReplaceMarket(ctx context.Context, marketID string, positions []domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace positions: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE market_id = $1`, marketID); err != nil {
		return fmt.Errorf("postgres: clear positions for %s: %w", marketID, err)
	}

	const insert = `
		INSERT INTO positions (market_id, user_id, bucket, shares, updated_at)
		VALUES ($1, $2, $3, $4, NOW())`
	for _, p := range positions {
		if p.Shares == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, insert, marketID, p.User, p.Bucket, p.Shares); err != nil {
			return fmt.Errorf("postgres: insert position %s/%d: %w", p.User, p.Bucket, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit replace positions: %w", err)
	}
	return nil
}

const positionSelectCols = `market_id, user_id, bucket, shares, updated_at`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.MarketID, &p.User, &p.Bucket, &p.Shares, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListByMarket returns every position row of a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE market_id = $1 ORDER BY user_id, bucket`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by market: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by market: %w", err)
	}
	return positions, nil
}

// ListByUser returns a user's positions across all markets.
func (s *PositionStore) ListByUser(ctx context.Context, user string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE user_id = $1 ORDER BY market_id, bucket`,
		user)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by user: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by user: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
