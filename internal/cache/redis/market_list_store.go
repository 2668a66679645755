package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// retainFor is how long an untouched list survives in Redis. Staleness is
// judged from the stored timestamp, not from the key expiry.
const retainFor = 7 * 24 * time.Hour

// MarketListStore implements domain.MarketListStore for one profile.
//
// Key schema:
//
//	{ns}:markets:{profile} - JSON CachedMarketList
type MarketListStore struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

// NewMarketListStore creates a store scoped to profile.
func NewMarketListStore(c *Client, profile string) *MarketListStore {
	return &MarketListStore{
		rdb: c.rdb,
		key: c.key("markets", profile),
		now: time.Now,
	}
}

// Read returns the cached list, or false when none was written.
func (s *MarketListStore) Read(ctx context.Context) (domain.CachedMarketList, bool, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CachedMarketList{}, false, nil
		}
		return domain.CachedMarketList{}, false, fmt.Errorf("redis: read market list: %w", err)
	}

	var list domain.CachedMarketList
	if err := json.Unmarshal(data, &list); err != nil {
		return domain.CachedMarketList{}, false, fmt.Errorf("redis: unmarshal market list: %w", err)
	}
	return list, true, nil
}

// Write overwrites the cached list and stamps it with the current time.
func (s *MarketListStore) Write(ctx context.Context, markets []domain.Market) error {
	data, err := json.Marshal(domain.CachedMarketList{Data: markets, Timestamp: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("redis: marshal market list: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, retainFor).Err(); err != nil {
		return fmt.Errorf("redis: write market list: %w", err)
	}
	return nil
}

// Clear removes the cached list.
func (s *MarketListStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis: clear market list: %w", err)
	}
	return nil
}

var _ domain.MarketListStore = (*MarketListStore)(nil)
