// Package ratelimit protects the refresh endpoint from abuse with two
// layers: a per-process in-memory token bucket for immediate shedding, and a
// Redis-backed atomic counter shared by every gateway replica for the
// durable per-IP window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter combines both layers behind a single Allow call.
type Limiter struct {
	redis *redis.Client
	perIP int
	window time.Duration

	mu       sync.Mutex
	local    map[string]*rate.Limiter
	burst    int
	refillPS float64
}

// New builds a Limiter. perIP/window bound the Redis-backed count; burst
// bounds the local token bucket consulted first (cheap to reject this way,
// no network round trip needed for obviously-too-fast callers).
func New(client *redis.Client, perIP int, window time.Duration, burst int) *Limiter {
	return &Limiter{
		redis:    client,
		perIP:    perIP,
		window:   window,
		local:    make(map[string]*rate.Limiter),
		burst:    burst,
		refillPS: float64(burst) / 60,
	}
}

// Allow reports whether a request from clientIP should proceed.
func (l *Limiter) Allow(ctx context.Context, clientIP string) (bool, error) {
	if !l.allowLocal(clientIP) {
		return false, nil
	}
	if l.redis == nil {
		return true, nil
	}
	return l.allowRedis(ctx, clientIP)
}

func (l *Limiter) allowLocal(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.local[clientIP]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.refillPS), l.burst)
		l.local[clientIP] = lim
	}
	return lim.Allow()
}

var checkAndIncrementScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current and tonumber(current) >= tonumber(ARGV[1]) then
		return 0
	end
	local result = redis.call('INCR', KEYS[1])
	if result == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return 1
`)

func (l *Limiter) allowRedis(ctx context.Context, clientIP string) (bool, error) {
	key := fmt.Sprintf("ratelimit:refresh:%s", clientIP)
	result, err := checkAndIncrementScript.Run(ctx, l.redis, []string{key}, l.perIP, int(l.window.Seconds())).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
