// Package httpmiddleware contains net/http middlewares shared by servers.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder returns the route template matching r, if any.
type RouteFinder func(r *http.Request) (string, bool)

// MakeRouteFinder returns a RouteFinder backed by router's matcher.
func MakeRouteFinder(router *mux.Router) RouteFinder {
	return func(r *http.Request) (string, bool) {
		var match mux.RouteMatch
		if !router.Match(r, &match) || match.Route == nil {
			return "", false
		}
		tmpl, err := match.Route.GetPathTemplate()
		if err != nil {
			return "", false
		}
		return tmpl, true
	}
}

// InjectLogger stores lg as the base request logger, tagged with the
// request id when RequestID runs earlier in the chain.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := lg
			if id := RequestIDFromContext(r.Context()); id != "" {
				l = l.With(zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), l)))
		})
	}
}

// Telemetry provides the OpenTelemetry providers used by Instrument.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument adds otelhttp tracing and metrics. Spans are named after the
// matched route template so path parameters do not explode cardinality.
func Instrument(serviceName string, find RouteFinder, m Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route, ok := find(r); ok {
					return r.Method + " " + route
				}
				return r.Method
			}),
		)
	}
}

// Labeler adds the matched route to otelhttp metric attributes. It must run
// inside Instrument.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route, ok := find(r); ok {
				if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
					l.Add(attribute.String("http.route", route))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// LogRequests logs every request after it completes.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", sw.bytes),
				zap.Duration("took", time.Since(start)),
			}
			if route, ok := find(r); ok {
				fields = append(fields, zap.String("route", route))
			}

			lg := zctx.From(r.Context())
			switch {
			case status >= 500:
				lg.Error("Request", fields...)
			case status >= 400:
				lg.Warn("Request", fields...)
			default:
				lg.Info("Request", fields...)
			}
		})
	}
}

// WriteError writes the {code, message} error body used across the API.
func WriteError(w http.ResponseWriter, code int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
