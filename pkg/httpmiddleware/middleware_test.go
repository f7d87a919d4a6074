package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Wrap(okHandler(), mw("a"), mw("b"), mw("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestMakeRouteFinder(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/orders/{id}", func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodGet)
	find := MakeRouteFinder(r)

	route, ok := find(httptest.NewRequest(http.MethodGet, "/api/orders/ORD-250309-0042", nil))
	require.True(t, ok)
	assert.Equal(t, "/api/orders/{id}", route)

	_, ok = find(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.False(t, ok)
}

func TestInjectLoggerAndLogRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	r := mux.NewRouter()
	r.HandleFunc("/api/products/{slug}", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("inside")
		w.WriteHeader(http.StatusNotFound)
	})
	find := MakeRouteFinder(r)

	h := Wrap(r, RequestID(), InjectLogger(zap.New(core)), LogRequests(find))
	req := httptest.NewRequest(http.MethodGet, "/api/products/silk-scarf", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	inside := logs.FilterMessage("inside").All()
	require.Len(t, inside, 1)
	assert.Equal(t, "req-1", inside[0].ContextMap()["request_id"])

	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "/api/products/{slug}", fields["route"])
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{name: "generated"},
		{name: "kept", header: map[string]string{"X-Request-ID": "checkout-42"}, want: "checkout-42"},
		{name: "correlation id", header: map[string]string{"X-Correlation-ID": "corr-7"}, want: "corr-7"},
		{
			name:   "request id wins",
			header: map[string]string{"X-Request-ID": "req-1", "X-Correlation-ID": "corr-7"},
			want:   "req-1",
		},
		{name: "control characters replaced", header: map[string]string{"X-Request-ID": "bad\nid"}},
		{name: "too long replaced", header: map[string]string{"X-Request-ID": strings.Repeat("a", 129)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, got, w.Header().Get("X-Request-ID"))
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
				return
			}
			_, err := uuid.Parse(got)
			assert.NoError(t, err, "expected a generated uuid, got %q", got)
		})
	}
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(CORSConfig{AllowOrigins: []string{"https://shop.example.com"}, MaxAge: 600})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "https://SHOP.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://SHOP.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Authorization", w.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, w.Header().Values("Vary"), "Origin")
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CORSConfig
		origin  string
		want    string
		expose  bool
		credent bool
	}{
		{
			name:   "exact match echoes origin",
			cfg:    CORSConfig{AllowOrigins: []string{"https://shop.example.com/"}},
			origin: "https://shop.example.com",
			want:   "https://shop.example.com",
			expose: true,
		},
		{
			name:   "unknown origin gets nothing",
			cfg:    CORSConfig{AllowOrigins: []string{"https://shop.example.com"}},
			origin: "https://evil.example.com",
		},
		{
			name:   "wildcard subdomain",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.vercel.app"}},
			origin: "https://angkor-mart-git-main.vercel.app",
			want:   "https://angkor-mart-git-main.vercel.app",
			expose: true,
		},
		{
			name:   "wildcard needs a subdomain",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.vercel.app"}},
			origin: "https://.vercel.app",
		},
		{
			name:   "wildcard respects scheme",
			cfg:    CORSConfig{AllowOrigins: []string{"https://*.vercel.app"}},
			origin: "http://preview.vercel.app",
		},
		{
			name:   "star",
			cfg:    CORSConfig{AllowOrigins: []string{"*"}},
			origin: "http://localhost:5173",
			want:   "*",
			expose: true,
		},
		{
			name:    "star with credentials echoes origin",
			cfg:     CORSConfig{AllowCredentials: true},
			origin:  "http://localhost:5173",
			want:    "http://localhost:5173",
			expose:  true,
			credent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.cfg)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.expose {
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Expose-Headers"))
			}
			if tt.credent {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}
