package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// Max is the number of requests a client may make per Window. It is also
	// the bucket size, so a quiet client can burst up to Max at once.
	Max int
	// Window is the period over which Max requests are replenished.
	Window time.Duration
	// Rules apply tighter budgets to individual routes, e.g. admin login.
	// The first matching rule wins; unmatched requests use Max and Window.
	Rules []RateLimitRule
	// KeyFunc extracts the client key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. payment provider callbacks.
	Skip func(*http.Request) bool
}

// RateLimitRule is a route-specific budget. Empty Method matches any method.
type RateLimitRule struct {
	Method string
	Path   string
	Max    int
	Window time.Duration
}

func (r RateLimitRule) matches(req *http.Request) bool {
	return req.URL.Path == r.Path && (r.Method == "" || req.Method == r.Method)
}

type budget struct {
	name  string
	max   int
	limit rate.Limit
}

func newBudget(name string, n int, window time.Duration) budget {
	if n < 1 {
		n = 1
	}
	return budget{name: name, max: n, limit: rate.Every(window / time.Duration(n))}
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per (budget, client) pair.
type rateLimiter struct {
	cfg      RateLimitConfig
	global   budget
	rules    []budget
	ttl      time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	rl := &rateLimiter{
		cfg:      cfg,
		global:   newBudget("*", cfg.Max, cfg.Window),
		ttl:      cfg.Window,
		visitors: make(map[string]*visitor),
	}
	for _, r := range cfg.Rules {
		rl.rules = append(rl.rules, newBudget(r.Method+" "+r.Path, r.Max, r.Window))
		rl.ttl = max(rl.ttl, r.Window)
	}
	return rl
}

func (rl *rateLimiter) budgetFor(r *http.Request) budget {
	for i, rule := range rl.cfg.Rules {
		if rule.matches(r) {
			return rl.rules[i]
		}
	}
	return rl.global
}

// allow takes a token for key from bucket b. It returns the tokens left, the
// time the bucket is full again and whether the request may proceed.
func (rl *rateLimiter) allow(b budget, key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	id := b.name + "|" + key
	v, ok := rl.visitors[id]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(b.limit, b.max)}
		rl.visitors[id] = v
	}
	v.lastSeen = now

	allowed = v.lim.AllowN(now, 1)
	tokens := v.lim.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}
	missing := float64(b.max) - tokens
	resetAt = now.Add(time.Duration(missing / float64(b.limit) * float64(time.Second)))
	return int(math.Floor(tokens)), resetAt, allowed
}

// cleanup forgets clients idle for longer than the longest window; their
// buckets would be full again anyway.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= rl.ttl {
			delete(rl.visitors, id)
		}
	}
}

func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * rl.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-client request budget.
// Over-budget requests get 429 with a Retry-After header. Every limited
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
//
// Idle clients are never evicted; long-running servers should use
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithCleanup is like RateLimit but evicts idle clients in the
// background until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startCleanup(ctx)
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			b := rl.budgetFor(r)
			now := time.Now()
			remaining, resetAt, allowed := rl.allow(b, rl.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(b.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				wait := time.Duration(float64(time.Second) / float64(b.limit))
				h.Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// defaultKeyFunc returns the client IP. Hosting platforms put the original
// client first in X-Forwarded-For.
func defaultKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
