// Package ratelimit bounds calls to rate-limited third-party services (the
// AI collaborator, the mail provider). Each downstream service gets its own
// token bucket, shared through Redis, so the limit holds across however many
// worker processes are draining at once.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket is the token bucket for one named downstream service.
type Bucket struct {
	client   *redis.Client
	key      string
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// ForService builds the bucket gating one service. Every worker that names
// the same service shares the same Redis key, and with it the same budget.
func ForService(client *redis.Client, service string, capacity int, refillPerSecond float64, ttl time.Duration) *Bucket {
	return &Bucket{
		client:   client,
		key:      "ratelimit:" + service,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

// Allow consumes a single token if one is available and reports the
// remaining balance. Refill is computed lazily from the elapsed time since
// the last call, inside the script, so the check-and-take is atomic.
func (b *Bucket) Allow(ctx context.Context) (bool, float64, error) {
	now := time.Now().UnixMilli()
	res, err := grantScript.Run(ctx, b.client, []string{b.key}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return false, 0, fmt.Errorf("unexpected limiter reply: %v", res)
	}
	granted, _ := reply[0].(int64)
	var remaining float64
	if s, ok := reply[1].(string); ok {
		remaining, _ = strconv.ParseFloat(s, 64)
	}
	return granted == 1, remaining, nil
}

var grantScript = redis.NewScript(`
local bucket = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2]) -- tokens per second
local now_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', bucket, 'tokens', 'stamp_ms')
local tokens = tonumber(state[1]) or capacity
local stamp = tonumber(state[2]) or now_ms

local elapsed = math.max(0, now_ms - stamp)
tokens = math.min(capacity, tokens + elapsed * rate / 1000)

local granted = 0
if tokens >= 1 then
  granted = 1
  tokens = tokens - 1
end

redis.call('HSET', bucket, 'tokens', tokens, 'stamp_ms', now_ms)
if ttl_ms > 0 then
  redis.call('PEXPIRE', bucket, ttl_ms)
end
return {granted, tostring(tokens)}
`)
