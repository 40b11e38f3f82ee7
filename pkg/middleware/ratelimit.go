package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/tourbook/pkg/logger"
)

const RateLimitMessage = "Too many requests from this IP! Please try again later!"

// Counter increments a fixed-window counter and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps one key per client per window, bucketed by wall clock.
type RedisCounter struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisCounter(client redis.Cmdable, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix, now: time.Now}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := c.now().UnixNano() / int64(window)
	k := c.prefix + key + ":" + strconv.FormatInt(bucket, 10)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests    int           // Max requests per window
	Window      time.Duration // Time window duration
	KeyFunc     func(r *http.Request) []string
	SkipFunc    func(r *http.Request) bool
	Deny        http.HandlerFunc // default is a 429 fail envelope
	TrustedHops int              // reverse proxies in front of the API; zero keys on the peer address
}

type RateLimiter struct {
	counter Counter
	config  RateLimitConfig
}

func NewRateLimiter(counter Counter, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ProxiedIPKeyFunc(config.TrustedHops)
	}
	if config.Deny == nil {
		config.Deny = func(w http.ResponseWriter, r *http.Request) {
			writeFail(w, http.StatusTooManyRequests, RateLimitMessage)
		}
	}
	return &RateLimiter{counter: counter, config: config}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				if !rl.allow(r.Context(), key) {
					rl.config.Deny(w, r)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow fails open: a counter outage never blocks traffic.
func (rl *RateLimiter) allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	hashedKey := fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
	count, err := rl.counter.Incr(ctx, hashedKey, rl.config.Window)
	if err != nil {
		logger.WarnContext(ctx, "rate limit counter unavailable", "error", err)
		return true
	}
	return count <= int64(rl.config.Requests)
}

// IPKeyFunc keys on the TCP peer address. Forwarded headers are ignored.
func IPKeyFunc(r *http.Request) []string {
	return ProxiedIPKeyFunc(0)(r)
}

// ProxiedIPKeyFunc keys on the client address as seen by the outermost of
// hops trusted proxies, each of which appends its peer to X-Forwarded-For.
// Entries further left are client-controlled and never used.
func ProxiedIPKeyFunc(hops int) func(r *http.Request) []string {
	return func(r *http.Request) []string {
		if ip := clientIP(r, hops); ip != "" {
			return []string{"ip:" + ip}
		}
		return nil
	}
}

func clientIP(r *http.Request, hops int) string {
	if hops > 0 {
		var chain []string
		for _, h := range r.Header.Values("X-Forwarded-For") {
			for _, part := range strings.Split(h, ",") {
				if part = strings.TrimSpace(part); part != "" {
					chain = append(chain, part)
				}
			}
		}
		if len(chain) >= hops {
			return chain[len(chain)-hops]
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
