package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantish/rangemaker/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// latest price vector is stored at "prices:{marketID}" with fields "vector"
// (JSON array) and "ts" (Unix nanoseconds). The whole vector is written
// atomically so readers never see a half-updated grid.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID string) string {
	return "prices:" + marketID
}

// SetVector stores the latest price vector and timestamp for a market.
func (pc *PriceCache) SetVector(ctx context.Context, marketID string, prices []float64, ts time.Time) error {
	vec, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("redis: marshal price vector %s: %w", marketID, err)
	}
	fields := map[string]interface{}{
		"vector": vec,
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID, err)
	}
	return nil
}

// GetVector retrieves the latest price vector and timestamp for a market.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetVector(ctx context.Context, marketID string) ([]float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	vecStr, ok := vals["vector"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	var prices []float64
	if err := json.Unmarshal([]byte(vecStr), &prices); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse price vector %s: %w", marketID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}

	return prices, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
