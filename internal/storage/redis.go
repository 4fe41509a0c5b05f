package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"futures-decision-engine/internal/risk"
)

const (
	// decisionKeyPrefix formats as engine:decision:{symbol}
	decisionKeyPrefix = "engine:decision"

	// decisionTTL keeps stale snapshots from outliving a dead engine.
	decisionTTL = 24 * time.Hour
)

// SnapshotCache keeps the latest decision per symbol in Redis so a
// dashboard or a standby process can read engine state without touching
// it. When Redis is unavailable it falls back to an in-memory map; the
// engine never depends on the cache being up.
type SnapshotCache struct {
	client    *redis.Client
	fallback  map[string]risk.Decision
	mu        sync.RWMutex
	available atomic.Bool
	logger    zerolog.Logger
}

// NewSnapshotCache creates the cache. A nil client selects memory-only
// mode.
func NewSnapshotCache(client *redis.Client, logger zerolog.Logger) *SnapshotCache {
	c := &SnapshotCache{
		client:   client,
		fallback: make(map[string]risk.Decision),
		logger:   logger.With().Str("component", "SnapshotCache").Logger(),
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory cache")
		} else {
			c.available.Store(true)
			c.logger.Info().Msg("Redis connected")
		}
	}
	return c
}

func decisionKey(symbol string) string {
	return fmt.Sprintf("%s:%s", decisionKeyPrefix, symbol)
}

// SaveDecision stores the latest decision for a symbol. Failures degrade
// to the in-memory fallback.
func (c *SnapshotCache) SaveDecision(ctx context.Context, d risk.Decision) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.fallback[d.Symbol] = d
	c.mu.Unlock()

	if c.client == nil {
		return
	}

	payload, err := json.Marshal(d)
	if err != nil {
		c.logger.Error().Err(err).Str("symbol", d.Symbol).Msg("Failed to marshal decision")
		return
	}

	if err := c.client.Set(ctx, decisionKey(d.Symbol), payload, decisionTTL).Err(); err != nil {
		if c.available.Swap(false) {
			c.logger.Warn().Err(err).Msg("Redis write failed, falling back to memory")
		}
		return
	}
	c.available.Store(true)
}

// LatestDecision returns the newest decision for a symbol, preferring
// Redis and falling back to memory.
func (c *SnapshotCache) LatestDecision(ctx context.Context, symbol string) (risk.Decision, bool) {
	if c == nil {
		return risk.Decision{}, false
	}

	if c.client != nil && c.available.Load() {
		payload, err := c.client.Get(ctx, decisionKey(symbol)).Bytes()
		if err == nil {
			var d risk.Decision
			if err := json.Unmarshal(payload, &d); err == nil {
				return d, true
			}
		} else if err != redis.Nil {
			c.available.Store(false)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.fallback[symbol]
	return d, ok
}

// Available reports whether Redis is currently reachable.
func (c *SnapshotCache) Available() bool {
	return c != nil && c.available.Load()
}
