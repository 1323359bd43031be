package httpmiddleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket is an in-memory per-key limiter for a single process.
type TokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	calls    int
	now      func() time.Time
}

// sweepEvery is how many Allow calls pass between evictions of idle buckets.
const sweepEvery = 1024

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens refilled at perMinute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow takes one token for key.
func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true, nil
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// sweep drops buckets that have refilled completely; a new bucket for the
// same key starts in the same state.
func (l *TokenBucket) sweep(now time.Time) {
	if l.rate <= 0 {
		return
	}
	full := time.Duration(float64(l.capacity) / float64(l.rate) * float64(time.Minute))
	for key, b := range l.state {
		if now.Sub(b.last) >= full {
			delete(l.state, key)
		}
	}
}

// Size returns the number of tracked keys.
func (l *TokenBucket) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state)
}

// RedisWindow is a fixed one-minute window limiter shared across instances.
type RedisWindow struct {
	client    *redis.Client
	perMinute int
	prefix    string
	now       func() time.Time
}

// NewRedisWindow creates a limiter allowing perMinute requests per key.
func NewRedisWindow(client *redis.Client, perMinute int) *RedisWindow {
	return &RedisWindow{client: client, perMinute: perMinute, prefix: "ratelimit:", now: time.Now}
}

// Allow counts the request against the current minute.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	window := l.now().Unix() / 60
	k := l.prefix + key + ":" + strconv.FormatInt(window, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(l.perMinute), nil
}

// KeyFunc picks the rate limit bucket for a request.
type KeyFunc func(c *gin.Context) string

// ClientIP keys requests by client address.
func ClientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// RateLimit enforces l per key; a nil key means ClientIP. Limiter failures
// let the request through and are logged.
func RateLimit(l Limiter, key KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if key == nil {
		key = ClientIP
	}
	return func(c *gin.Context) {
		ok, err := l.Allow(c.Request.Context(), key(c))
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests"})
			return
		}
		c.Next()
	}
}
