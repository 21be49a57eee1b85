// Package cache keeps the latest quote per symbol in Redis so query
// requests can be answered without replaying history from disk.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
)

// ErrCache reports a snapshot read or write that could not complete.
var ErrCache = errors.New("cache failure")

const (
	keyPrefix = "quote:"
	// snapshotTTL keeps stale symbols from lingering after a feed stops
	// publishing them.
	snapshotTTL = time.Hour
)

// SnapshotCache stores the most recent quote per symbol. Values are the
// quote's wire JSON, keyed quote:<symbol>.
type SnapshotCache struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to Redis at addr and verifies the connection.
func New(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping %s: %v", ErrCache, addr, err)
	}
	logger.Info("snapshot cache connected", zap.String("addr", addr))
	return &SnapshotCache{client: client, logger: logger}, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client *redis.Client, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{client: client, logger: logger}
}

// SetLatest overwrites the snapshot for the quote's symbol.
func (c *SnapshotCache) SetLatest(ctx context.Context, q models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("%w: marshal quote for %s: %v", ErrCache, q.Symbol, err)
	}
	if err := c.client.Set(ctx, keyPrefix+q.Symbol, payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrCache, q.Symbol, err)
	}
	return nil
}

// GetLatest returns the snapshot for symbol, or nil when none is cached.
func (c *SnapshotCache) GetLatest(ctx context.Context, symbol string) (*models.Quote, error) {
	payload, err := c.client.Get(ctx, keyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrCache, symbol, err)
	}
	var q models.Quote
	if err := json.Unmarshal(payload, &q); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot for %s: %v", ErrCache, symbol, err)
	}
	return &q, nil
}

// GetSnapshots returns the cached quotes for the given symbols in one
// round trip. Symbols without a snapshot are simply absent from the
// result.
func (c *SnapshotCache) GetSnapshots(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = keyPrefix + sym
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget: %v", ErrCache, err)
	}

	quotes := make([]models.Quote, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var q models.Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			c.logger.Warn("dropping undecodable snapshot", zap.String("symbol", symbols[i]), zap.Error(err))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
