package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"xrpredict/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// OpenResolution returns the pending resolution ID for the market,
// creating one if none exists. The partial unique index on pending rows
// makes the create race-safe; a concurrent insert loses and re-reads.
func (s *SettlementStore) OpenResolution(ctx context.Context, marketID string) (string, error) {
	const sel = `SELECT id FROM resolutions WHERE market_id = $1 AND status = 'pending'`

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, sel, marketID).Scan(&id)
	if err == nil {
		return id.String(), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("postgres: find pending resolution: %w", err)
	}

	id = uuid.New()
	const ins = `
		INSERT INTO resolutions (id, market_id, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT DO NOTHING`
	if _, err := s.pool.Exec(ctx, ins, id, marketID); err != nil {
		return "", fmt.Errorf("postgres: open resolution: %w", err)
	}

	// Re-read in case a concurrent caller won the insert.
	if err := s.pool.QueryRow(ctx, sel, marketID).Scan(&id); err != nil {
		return "", fmt.Errorf("postgres: reread pending resolution: %w", err)
	}
	return id.String(), nil
}

// MarkResolved transitions the resolution row to settled.
func (s *SettlementStore) MarkResolved(ctx context.Context, resolutionID string) error {
	const query = `
		UPDATE resolutions
		SET status = 'settled', settled_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, resolutionID)
	if err != nil {
		return fmt.Errorf("postgres: mark resolved %s: %w", resolutionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark resolved %s: %w", resolutionID, domain.ErrNotFound)
	}
	return nil
}

// GetPayout returns the payout record for (resolutionID, voter).
func (s *SettlementStore) GetPayout(ctx context.Context, resolutionID, voter string) (domain.PayoutRecord, error) {
	const query = `
		SELECT resolution_id, voter_address, amount_drops, status,
		       COALESCE(tx_hash, ''), COALESCE(error, ''), updated_at
		FROM payouts
		WHERE resolution_id = $1 AND voter_address = $2`

	var rec domain.PayoutRecord
	var status string
	var amount int64
	err := s.pool.QueryRow(ctx, query, resolutionID, voter).Scan(
		&rec.ResolutionID, &rec.Voter, &amount, &status,
		&rec.TxHash, &rec.Error, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PayoutRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PayoutRecord{}, fmt.Errorf("postgres: get payout %s/%s: %w", resolutionID, voter, err)
	}
	rec.Amount = domain.Drops(amount)
	rec.Status = domain.PayoutStatus(status)
	return rec, nil
}

// PutPayout upserts a payout record.
func (s *SettlementStore) PutPayout(ctx context.Context, rec domain.PayoutRecord) error {
	const query = `
		INSERT INTO payouts (resolution_id, voter_address, amount_drops, status, tx_hash, error, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW())
		ON CONFLICT (resolution_id, voter_address) DO UPDATE SET
			amount_drops = EXCLUDED.amount_drops,
			status       = EXCLUDED.status,
			tx_hash      = EXCLUDED.tx_hash,
			error        = EXCLUDED.error,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query,
		rec.ResolutionID, rec.Voter, int64(rec.Amount),
		string(rec.Status), rec.TxHash, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: put payout %s/%s: %w", rec.ResolutionID, rec.Voter, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
