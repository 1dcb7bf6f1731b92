package ratelimit

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/notemarket/notemarket/internal/pkg/metrics"
)

// FailoverStore serves a consumption from fallback when primary errors. Quota is
// then tracked per instance until the shared store answers again.
type FailoverStore struct {
	primary  Store
	fallback Store
}

func NewFailoverStore(primary, fallback Store) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback}
}

func (s *FailoverStore) Consume(ctx context.Context, key string, rule Rule) (Result, error) {
	res, err := s.primary.Consume(ctx, key, rule)
	if err == nil {
		return res, nil
	}
	metrics.RateLimitStoreFallbacks.Inc()
	log.Warnf("[RateLimit] Shared store failed for %s, using in-process counter: %v", key, err)
	return s.fallback.Consume(ctx, key, rule)
}

// SelectStore picks the counter store once at start-up: Redis when reachable,
// otherwise process memory.
func SelectStore(client *redis.Client, reachable bool) Store {
	if client == nil || !reachable {
		log.Info("[RateLimit] Using in-process counter store")
		return NewMemoryStore()
	}
	log.Info("[RateLimit] Using Redis counter store")
	return NewFailoverStore(NewRedisStore(client), NewMemoryStore())
}
