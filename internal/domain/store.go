package domain

import (
	"context"
	"time"
)

// MarketStore persists the market document. The market is a single
// process-wide instance, so the store is keyed by market ID but only ever
// holds one row in practice.
type MarketStore interface {
	// Load returns the persisted market and true, or a zero Market and
	// false when no document exists yet.
	Load(ctx context.Context, id string) (Market, bool, error)
	Save(ctx context.Context, m Market) error
}

// SettlementStore persists resolution attempts and per-winner payout
// idempotency records.
type SettlementStore interface {
	// OpenResolution returns the ID of the pending resolution for the
	// market, creating one if none exists. The ID is stable across a
	// crash-and-retry so payout records keep their keys.
	OpenResolution(ctx context.Context, marketID string) (string, error)

	// MarkResolved transitions the resolution row to settled. Called
	// exactly once, after the resolution result is persisted.
	MarkResolved(ctx context.Context, resolutionID string) error

	// GetPayout returns the payout record for (resolutionID, voter), or
	// ErrNotFound.
	GetPayout(ctx context.Context, resolutionID, voter string) (PayoutRecord, error)

	// PutPayout upserts a payout record.
	PutPayout(ctx context.Context, rec PayoutRecord) error
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// LockManager provides distributed locks so only one process runs a
// resolution at a time. Acquire returns an unlock function on success,
// or ErrLockHeld when another holder owns the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ResolutionArchiver stores the final resolution report out of band, for
// example in object storage. Archiving is best-effort.
type ResolutionArchiver interface {
	ArchiveResolution(ctx context.Context, result ResolutionResult) error
}
