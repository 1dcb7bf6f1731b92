package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed window with block: the counter key expires with the window; exceeding the
// quota sets a separate block key and resets the counter.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local block_key = KEYS[2]
local points = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local block = tonumber(ARGV[3])

local blocked = redis.call('PTTL', block_key)
if blocked > 0 then
  return {0, 0, blocked}
end

local count = redis.call('INCR', key)
if count == 1 then
  redis.call('PEXPIRE', key, window)
end
local ttl = redis.call('PTTL', key)
if ttl < 0 then
  redis.call('PEXPIRE', key, window)
  ttl = window
end

if count <= points then
  return {1, points - count, ttl}
end

if block > 0 then
  redis.call('SET', block_key, 1, 'PX', block)
  redis.call('DEL', key)
  return {0, 0, block}
end
return {0, 0, ttl}
`)

// RedisStore shares counters between instances.
type RedisStore struct {
	client redis.Scripter
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Consume(ctx context.Context, key string, rule Rule) (Result, error) {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{key, key + ":blocked"},
		rule.Points, rule.Window.Milliseconds(), rule.Block.Milliseconds(),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		return Result{}, fmt.Errorf("unexpected redis script result: %v", res)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	ttl, _ := vals[2].(int64)

	out := Result{Allowed: allowed == 1, Remaining: remaining}
	if !out.Allowed {
		out.RetryAfter = time.Duration(ttl) * time.Millisecond
	}
	return out, nil
}
