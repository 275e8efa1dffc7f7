package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"xrpredict/internal/domain"
)

// MarketStore implements domain.MarketStore using a JSONB document table.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Load returns the persisted market document, or false when none exists.
func (s *MarketStore) Load(ctx context.Context, id string) (domain.Market, bool, error) {
	const query = `SELECT document FROM markets WHERE id = $1`

	var doc []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, false, nil
	}
	if err != nil {
		return domain.Market{}, false, fmt.Errorf("postgres: load market %s: %w", id, err)
	}

	var m domain.Market
	if err := json.Unmarshal(doc, &m); err != nil {
		return domain.Market{}, false, fmt.Errorf("postgres: decode market %s: %w", id, err)
	}
	return m, true, nil
}

// Save upserts the market document.
func (s *MarketStore) Save(ctx context.Context, m domain.Market) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("postgres: encode market %s: %w", m.ID, err)
	}

	const query = `
		INSERT INTO markets (id, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			document   = EXCLUDED.document,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, m.ID, doc); err != nil {
		return fmt.Errorf("postgres: save market %s: %w", m.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
