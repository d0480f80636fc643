// Package ratelimit throttles ingest per reporter identity with a
// sliding window. Counting runs through redis sorted sets when a client
// is configured, so the limit holds across service instances; otherwise
// an in-process window applies per instance.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Limiter answers whether one more request from key is allowed right now.
type Limiter struct {
	rdb      *redis.Client
	capacity int
	window   time.Duration

	mu    sync.Mutex
	local map[string][]time.Time
}

// New builds a limiter allowing capacity requests per window per key.
// rdb may be nil for single-instance deployments.
func New(rdb *redis.Client, capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		rdb:      rdb,
		capacity: capacity,
		window:   window,
		local:    make(map[string][]time.Time),
	}
}

// The script trims expired entries, counts the rest, and records the new
// request only when under capacity, all atomically.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local capacity = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)
	if count >= capacity then
		return 0
	end
	redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
	redis.call('EXPIRE', key, ttl)
	return 1
`)

// Allow reports whether the request is within the limit. Redis failures
// fall back to the in-process window rather than rejecting traffic.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.rdb == nil {
		return l.allowLocal(key)
	}
	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{fmt.Sprintf("ratelimit:%s", key)},
		now.UnixMicro(),
		now.Add(-l.window).UnixMicro(),
		l.capacity,
		int(l.window.Seconds())+1,
	).Int()
	if err != nil {
		return l.allowLocal(key)
	}
	return res == 1
}

func (l *Limiter) allowLocal(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.local[key][:0]
	for _, t := range l.local[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.capacity {
		l.local[key] = kept
		return false
	}
	l.local[key] = append(kept, now)
	return true
}
