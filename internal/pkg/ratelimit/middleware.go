package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/notemarket/notemarket/internal/pkg/cache"
	"github.com/notemarket/notemarket/internal/pkg/env"
	"github.com/notemarket/notemarket/internal/pkg/metrics"
	"github.com/notemarket/notemarket/internal/pkg/usercontext"
)

// Middleware answers 429 with Retry-After when l denies the request. It must run
// after authentication so the user layer sees the caller.
func Middleware(l *Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		keys := Keys{IP: c.IP(), Path: c.Path()}
		if id := usercontext.GetUserID(c); id != 0 {
			keys.User = strconv.FormatUint(uint64(id), 10)
		}

		decision, err := l.Admit(c.UserContext(), keys)
		if err != nil {
			log.Errorf("[RateLimit] %s limiter failed for %s: %v", l.name, keys.Path, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rate_limiter_unavailable"})
		}
		if !decision.Allowed {
			log.Infof("[RateLimit] %s denied %s: %v", l.name, keys.Path, decision.Err())
			secs := RetryAfterSeconds(decision)
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(secs, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "too_many_requests",
				"retry_after": secs,
			})
		}
		return c.Next()
	}
}

const (
	GeneralMax        = 100
	GeneralExpiration = 60 * time.Second
)

// GeneralMiddleware is the single-layer (source address) limiter for general
// traffic. storage may be nil for in-memory counters; skip may be nil.
func GeneralMiddleware(storage fiber.Storage, skip func(c *fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Next:       skip,
		Max:        GeneralMax,
		Expiration: GeneralExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			metrics.RateLimitDenials.WithLabelValues("general", string(LayerIP)).Inc()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(GeneralExpiration.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests"})
		},
		Storage: storage,
	})
}

// NewGeneralStorage shares the general limiter's counters through Redis, using the
// address of the cache client. It returns nil when Redis is not reachable.
func NewGeneralStorage() fiber.Storage {
	client := cache.GetClient()
	if client == nil || !cache.Available() {
		return nil
	}

	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	// Limiter keys live in their own database; the cache uses 0.
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: client.Options().Password,
		Database: env.GetEnvInt("CACHE_LIMITER_DB", 2),
		Reset:    false,
	})
}
