package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fundsight/fund-engine/internal/model"
)

// CachedOracle wraps a primary Oracle with a Redis read-through cache.
// Scheme histories change at most once per business day, and the sell-side
// date resolution re-queries the oracle on every backward step, so caching
// the full series per scheme keeps that loop cheap without changing
// resolution behavior.
type CachedOracle struct {
	primary Oracle
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedOracle creates a cached wrapper around a primary oracle.
func NewCachedOracle(primary Oracle, rdb *redis.Client, ttl time.Duration) *CachedOracle {
	return &CachedOracle{primary: primary, rdb: rdb, ttl: ttl}
}

func (c *CachedOracle) SchemeHistory(ctx context.Context, schemeCode string) (*model.SchemeHistory, error) {
	// Try cache.
	data, err := c.rdb.Get(ctx, historyKey(schemeCode)).Bytes()
	if err == nil {
		var hist model.SchemeHistory
		if json.Unmarshal(data, &hist) == nil && len(hist.Samples) > 0 {
			return &hist, nil
		}
	}

	// Cache miss: fetch from primary. Oracle errors are never cached.
	hist, err := c.primary.SchemeHistory(ctx, schemeCode)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(hist); err == nil {
		c.rdb.Set(ctx, historyKey(schemeCode), data, c.ttl)
	}
	return hist, nil
}

func historyKey(schemeCode string) string { return fmt.Sprintf("navhist:%s", schemeCode) }
