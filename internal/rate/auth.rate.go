// Package rate bounds attempts per client and route with fixed-window
// counters. The limiter fails open: if the backing store is unreachable the
// request goes through and the degradation is logged, because losing redis
// must not take authentication down with it.
package rate

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RogueElectron/Cypher/pkg/cache"
	"github.com/RogueElectron/Cypher/pkg/response"
	"github.com/RogueElectron/Cypher/pkg/xerrors"
)

// Tier presets. Auth endpoints get the strict tier, TOTP verification the
// moderate one, and TOTP enrollment the aggressive one.
var (
	Strict     = Tier{Limit: 5, Window: 15 * time.Minute}
	Moderate   = Tier{Limit: 10, Window: 5 * time.Minute}
	Aggressive = Tier{Limit: 3, Window: time.Hour}
)

type Tier struct {
	Limit  int
	Window time.Duration
}

// Counter is the limiter's backing store: an increment that owns its expiry
// window plus a TTL probe for Retry-After.
type Counter interface {
	IncrWithExpire(ctx context.Context, key string, window time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RedisCounter shares windows across replicas through the redis cache under
// the "rate" namespace.
type RedisCounter struct {
	cache *cache.Cache
}

func NewRedisCounter(c *cache.Cache) *RedisCounter {
	return &RedisCounter{cache: c}
}

func (c *RedisCounter) IncrWithExpire(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.cache.IncrWithExpire(ctx, "rate", key, window)
}

func (c *RedisCounter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.cache.GetTTL(ctx, "rate", key)
}

// MemoryCounter keeps windows in-process; used by tests and by deployments
// without redis.
type MemoryCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64), expires: make(map[string]time.Time)}
}

func (c *MemoryCounter) IncrWithExpire(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.expires[key]; ok && time.Now().After(exp) {
		delete(c.counts, key)
		delete(c.expires, key)
	}
	c.counts[key]++
	if c.counts[key] == 1 {
		c.expires[key] = time.Now().Add(window)
	}
	return c.counts[key], nil
}

func (c *MemoryCounter) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.expires[key]
	if !ok {
		return 0, nil
	}
	return time.Until(exp), nil
}

type Limiter struct {
	counter Counter
}

func NewLimiter(counter Counter) *Limiter {
	return &Limiter{counter: counter}
}

// Allow checks one attempt for (clientID, route) against the tier. On a
// breached limit it returns ErrRateLimited and the time until the window
// resets.
func (l *Limiter) Allow(ctx context.Context, clientID, route string, tier Tier) (time.Duration, error) {
	key := fmt.Sprintf("%s:%s", route, clientID)
	cnt, err := l.counter.IncrWithExpire(ctx, key, tier.Window)
	if err != nil {
		log.Printf("rate limiter degraded, allowing request: %v", err)
		return 0, nil
	}
	if cnt > int64(tier.Limit) {
		retryAfter, ttlErr := l.counter.TTL(ctx, key)
		if ttlErr != nil || retryAfter <= 0 {
			retryAfter = tier.Window
		}
		return retryAfter, xerrors.ErrRateLimited
	}
	return 0, nil
}

// Middleware wraps a route group with the tier. The client identifier is the
// forwarded address when a proxy set one, the peer address otherwise.
func (l *Limiter) Middleware(route string, tier Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			retryAfter, err := l.Allow(r.Context(), clientID(r), route, tier)
			if err != nil {
				response.RateLimited(w, retryAfter, "Too many requests. Try again in "+retryAfter.Round(time.Second).String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientID(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return "ip:" + strings.TrimSpace(strings.Split(ip, ",")[0])
}
