package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"xrpredict/internal/domain"
)

const snapshotTTL = 5 * time.Minute

// SnapshotCache keeps the latest market document in Redis as JSON so read
// replicas and restarting processes can serve GET /api/prediction without
// touching PostgreSQL. It implements domain.MarketStore; a cache miss is
// reported as (zero, false, nil), not as an error.
//
// Key schema:
//
//	prediction:{id} - string value containing the JSON market document
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(id string) string { return "prediction:" + id }

// Load retrieves the cached market document.
func (sc *SnapshotCache) Load(ctx context.Context, id string) (domain.Market, bool, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, false, nil
		}
		return domain.Market{}, false, fmt.Errorf("redis: get snapshot %s: %w", id, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, false, fmt.Errorf("redis: unmarshal snapshot %s: %w", id, err)
	}
	return m, true, nil
}

// Save stores the market document with a rolling TTL. The cache is a
// convenience copy; PostgreSQL remains the durable record.
func (sc *SnapshotCache) Save(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", m.ID, err)
	}

	if err := sc.rdb.Set(ctx, snapshotKey(m.ID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", m.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*SnapshotCache)(nil)
