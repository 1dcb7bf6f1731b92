package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/notemarket/notemarket/internal/pkg/env"
)

var (
	client    *redis.Client
	reachable bool
)

// SetupCache connects to the shared counter store. An empty CACHE_HOST leaves the
// cache unconfigured; an unreachable host is logged and reported by Available.
func SetupCache() {
	host := strings.TrimSpace(env.GetEnv("CACHE_HOST", ""))
	if host == "" {
		log.Info("[Cache] CACHE_HOST not set, running without Redis")
		client, reachable = nil, false
		return
	}
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		reachable = false
		log.Warnf("[Cache] Could not connect to Redis at %s:%s: %v", host, port, err)
		return
	}
	reachable = true
	log.Infof("[Cache] Successfully connected to Redis: %s", pong)
}

// GetClient returns the Redis client, or nil when no host is configured.
func GetClient() *redis.Client {
	return client
}

// Available reports whether the start-up PING succeeded.
func Available() bool {
	return client != nil && reachable
}

// Close releases the connection pool.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
