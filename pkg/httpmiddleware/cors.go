package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access for the storefront and admin
// frontends.
type CORSConfig struct {
	// AllowOrigins lists exact origins ("https://shop.example.com"), wildcard
	// subdomain patterns ("https://*.vercel.app") or "*". Empty means "*".
	AllowOrigins []string
	// AllowMethods defaults to GET, POST, PUT, DELETE, OPTIONS.
	AllowMethods []string
	// AllowHeaders is sent on preflight; when empty the requested headers
	// are echoed.
	AllowHeaders []string
	// ExposeHeaders defaults to the request id and rate limit headers.
	ExposeHeaders []string
	// AllowCredentials forces the specific origin to be echoed instead of "*".
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0".
	MaxAge int
}

var defaultExposeHeaders = []string{
	"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
}

type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []originSuffix
}

// originSuffix is a "scheme://*.domain" pattern split into its parts.
type originSuffix struct {
	scheme string
	domain string
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{any: len(origins) == 0, exact: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		switch {
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			scheme, domain, _ := strings.Cut(o, "://*")
			m.suffixes = append(m.suffixes, originSuffix{scheme: scheme + "://", domain: domain})
		case o != "":
			m.exact[o] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) match(origin string) bool {
	if m.any {
		return true
	}
	o := strings.ToLower(origin)
	if _, ok := m.exact[o]; ok {
		return true
	}
	for _, s := range m.suffixes {
		host, ok := strings.CutPrefix(o, s.scheme)
		// "*.vercel.app" needs at least one label in front of the domain.
		if ok && strings.HasSuffix(host, s.domain) && len(host) > len(s.domain) {
			return true
		}
	}
	return false
}

// CORS returns a middleware that answers preflight requests and decorates
// responses to allowed origins. Preflights are answered with 204 whether the
// origin is allowed or not; disallowed origins just get no CORS headers.
func CORS(cfg CORSConfig) Middleware {
	origins := newOriginMatcher(cfg.AllowOrigins)
	wildcard := origins.any && !cfg.AllowCredentials

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	}
	expose := cfg.ExposeHeaders
	if len(expose) == 0 {
		expose = defaultExposeHeaders
	}
	var (
		allowMethods  = strings.Join(methods, ", ")
		allowHeaders  = strings.Join(cfg.AllowHeaders, ", ")
		exposeHeaders = strings.Join(expose, ", ")
		maxAge        string
	)
	switch {
	case cfg.MaxAge > 0:
		maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		maxAge = "0"
	}

	allowOrigin := func(origin string) string {
		switch {
		case !origins.match(origin):
			return ""
		case wildcard:
			return "*"
		default:
			return origin
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !wildcard {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed := allowOrigin(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed != "" {
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", allowMethods)
					if allowHeaders != "" {
						h.Set("Access-Control-Allow-Headers", allowHeaders)
					} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
						h.Set("Access-Control-Allow-Headers", rh)
					}
					if cfg.AllowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
