package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, method, path, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Budget(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i, want := range []string{"2", "1", "0"} {
		w := hit(h, http.MethodGet, "/api/products", "192.168.1.1:12345", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))

		reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, reset, time.Now().Unix())
	}

	w := hit(h, http.MethodGet, "/api/products", "192.168.1.1:12345", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "20", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		first   map[string]string
		firstIP string
		second  map[string]string
		otherIP string
		want    int
	}{
		{
			name:    "different client ips are independent",
			firstIP: "10.0.0.1:1234",
			otherIP: "10.0.0.2:1234",
			want:    http.StatusOK,
		},
		{
			name:    "port does not matter",
			firstIP: "10.0.0.1:1234",
			otherIP: "10.0.0.1:5678",
			want:    http.StatusTooManyRequests,
		},
		{
			name:    "first forwarded address is the client",
			firstIP: "192.168.1.1:4444",
			first:   map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"},
			otherIP: "192.168.1.2:5555",
			second:  map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:    http.StatusTooManyRequests,
		},
		{
			name:    "real ip header",
			firstIP: "192.168.1.1:4444",
			first:   map[string]string{"X-Real-IP": "198.51.100.7"},
			otherIP: "192.168.1.1:4444",
			second:  map[string]string{"X-Real-IP": "198.51.100.8"},
			want:    http.StatusOK,
		},
		{
			name:    "custom key",
			keyFunc: func(r *http.Request) string { return r.Header.Get("Authorization") },
			firstIP: "10.0.0.1:1",
			first:   map[string]string{"Authorization": "Bearer a"},
			otherIP: "10.0.0.1:1",
			second:  map[string]string{"Authorization": "Bearer b"},
			want:    http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc})(okHandler())

			require.Equal(t, http.StatusOK, hit(h, http.MethodGet, "/", tt.firstIP, tt.first).Code)
			assert.Equal(t, tt.want, hit(h, http.MethodGet, "/", tt.otherIP, tt.second).Code)
		})
	}
}

func TestRateLimit_Rules(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    100,
		Window: time.Minute,
		Rules: []RateLimitRule{
			{Method: http.MethodPost, Path: "/api/auth/login", Max: 2, Window: time.Minute},
		},
	})(okHandler())
	const client = "10.1.1.1:1"

	for range 2 {
		w := hit(h, http.MethodPost, "/api/auth/login", client, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, http.MethodPost, "/api/auth/login", client, nil).Code)

	// Other routes draw from the general budget.
	w := hit(h, http.MethodGet, "/api/products", client, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))

	// Method must match too.
	assert.Equal(t, http.StatusOK, hit(h, http.MethodGet, "/api/auth/login", client, nil).Code)
}

func TestRateLimit_Refill(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 2, Window: time.Second})
	b := rl.global
	now := time.Now()

	_, _, ok := rl.allow(b, "c", now)
	require.True(t, ok)
	_, _, ok = rl.allow(b, "c", now)
	require.True(t, ok)
	_, _, ok = rl.allow(b, "c", now)
	require.False(t, ok)

	remaining, _, ok := rl.allow(b, "c", now.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
}

func TestRateLimit_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{
		Max:    5,
		Window: time.Minute,
		Rules:  []RateLimitRule{{Path: "/slow", Max: 1, Window: time.Hour}},
	})
	now := time.Now()
	rl.allow(rl.global, "a", now)
	rl.allow(rl.global, "b", now.Add(50*time.Minute))

	rl.cleanup(now.Add(70 * time.Minute))
	assert.Len(t, rl.visitors, 1)

	rl.cleanup(now.Add(3 * time.Hour))
	assert.Empty(t, rl.visitors)
}

func TestRateLimit_Skip(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip: func(r *http.Request) bool {
			return r.URL.Path == "/api/payments/callback"
		},
	})(okHandler())

	for range 3 {
		w := hit(h, http.MethodPost, "/api/payments/callback", "10.0.0.9:1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}
