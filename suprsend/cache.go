package suprsend

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"pulseboard/domain"
)

type preferenceSource interface {
	FetchPreferences(ctx context.Context, distinctID string) (domain.PreferenceDocument, error)
}

// Cache wraps a Client with Redis-backed caching for preference reads.
// Preference documents are consulted on every notification attempt, so a
// short TTL keeps the hub traffic bounded without holding stale opt-outs
// for long.
type Cache struct {
	*Client
	base  preferenceSource
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base preferenceSource, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("suprsend.NewCache: base client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if cl, ok := base.(*Client); ok {
		c.Client = cl
	}
	return c
}

func (c *Cache) FetchPreferences(ctx context.Context, distinctID string) (domain.PreferenceDocument, error) {
	if doc, ok := c.loadFromCache(ctx, distinctID); ok {
		return doc, nil
	}

	doc, err := c.base.FetchPreferences(ctx, distinctID)
	if err != nil {
		return domain.PreferenceDocument{}, err
	}

	c.store(ctx, distinctID, doc)
	return doc, nil
}

func (c *Cache) loadFromCache(ctx context.Context, distinctID string) (domain.PreferenceDocument, bool) {
	if c.redis == nil {
		return domain.PreferenceDocument{}, false
	}
	data, err := c.redis.Get(ctx, preferencesCacheKey(distinctID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the hub without failing.
			_ = c.redis.Del(ctx, preferencesCacheKey(distinctID)).Err()
		}
		return domain.PreferenceDocument{}, false
	}
	var doc domain.PreferenceDocument
	if err := sonic.Unmarshal(data, &doc); err != nil {
		_ = c.redis.Del(ctx, preferencesCacheKey(distinctID)).Err()
		return domain.PreferenceDocument{}, false
	}
	return doc, true
}

func (c *Cache) store(ctx context.Context, distinctID string, doc domain.PreferenceDocument) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(doc)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, preferencesCacheKey(distinctID), data, c.ttl).Err()
}

func preferencesCacheKey(distinctID string) string {
	return "prefs:" + distinctID
}
