// Package ratelimit caps requests per client in a fixed window.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/rueidis"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter keeps counters in process. Use RedisLimiter when several
// servers share one board.
type MemoryLimiter struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count int
	start time.Time
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{Limit: limit, Window: window, Now: time.Now, buckets: map[string]*bucket{}}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := m.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets == nil {
		m.buckets = map[string]*bucket{}
	}
	b, ok := m.buckets[key]
	if !ok || now.Sub(b.start) >= m.Window {
		b = &bucket{start: now}
		m.buckets[key] = b
	}
	if b.count >= m.Limit {
		return Decision{RetryAfter: b.start.Add(m.Window).Sub(now)}, nil
	}
	b.count++
	m.sweep(now)
	return Decision{Allowed: true, Remaining: m.Limit - b.count}, nil
}

// sweep drops expired buckets once the map grows.
func (m *MemoryLimiter) sweep(now time.Time) {
	if len(m.buckets) < 1024 {
		return
	}
	for k, b := range m.buckets {
		if now.Sub(b.start) >= m.Window {
			delete(m.buckets, k)
		}
	}
}

// RedisLimiter shares counters through Redis: INCR per window key, with the
// expiry set by the first hit.
type RedisLimiter struct {
	Client rueidis.Client
	Prefix string
	Limit  int
	Window time.Duration
}

func NewRedis(client rueidis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "taskboard:ratelimit"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Limit: limit, Window: window}
}

// NewRedisClient connects to a single Redis address.
func NewRedisClient(addr string) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.Prefix + ":" + key
	count, err := r.Client.Do(ctx, r.Client.B().Incr().Key(k).Build()).AsInt64()
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		if err := r.Client.Do(ctx, r.Client.B().Pexpire().Key(k).Milliseconds(r.Window.Milliseconds()).Build()).Error(); err != nil {
			return Decision{}, err
		}
	}
	if int(count) > r.Limit {
		ttl, err := r.Client.Do(ctx, r.Client.B().Pttl().Key(k).Build()).AsInt64()
		if err != nil || ttl < 0 {
			ttl = r.Window.Milliseconds()
		}
		return Decision{RetryAfter: time.Duration(ttl) * time.Millisecond}, nil
	}
	return Decision{Allowed: true, Remaining: r.Limit - int(count)}, nil
}

// Middleware limits requests per client IP under scope. A failing limiter
// lets the request through and logs.
func Middleware(l Limiter, scope string, logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), scope+":"+clientIP(r))
			if err != nil {
				logger.Printf("ratelimit: %s: %v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				secs := int(d.RetryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": "rate_limited", "message": "rate limit exceeded"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
