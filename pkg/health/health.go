// Package health serves the /livez and /readyz endpoints of the storefront API.
//
// Each registered check is evaluated on its own ticker. Its reported state
// changes only after FailureThreshold consecutive failures, or
// SuccessThreshold consecutive passes, so a single slow database ping does
// not pull the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a check contributes to.
type Kind uint8

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Kind = iota
	// Readiness checks decide whether the process should receive traffic.
	Readiness
)

const (
	defaultTimeout          = 5 * time.Second
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1

	notReadyKey = "_readiness"
)

// Check describes one registered health check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc

	FailureThreshold int
	SuccessThreshold int
}

// CheckOption tunes a check registered with AddLivenessCheck or
// AddReadinessCheck.
type CheckOption func(c *Check)

// WithFailureThreshold sets how many consecutive failures mark a check
// unhealthy. Default 3.
func WithFailureThreshold(n int) CheckOption {
	return func(c *Check) { c.FailureThreshold = n }
}

// WithSuccessThreshold sets how many consecutive passes mark a check healthy
// again. Default 1.
func WithSuccessThreshold(n int) CheckOption {
	return func(c *Check) { c.SuccessThreshold = n }
}

// state is the published outcome of a check.
type state struct {
	healthy bool
	err     error
}

// entry is a registered check. The streak counters are owned by the
// goroutine that evaluates the check; state is read by HTTP handlers.
type entry struct {
	Check

	state  atomic.Pointer[state]
	fails  int
	passes int
}

func (e *entry) current() state {
	if s := e.state.Load(); s != nil {
		return *s
	}
	return state{healthy: true}
}

func (e *entry) healthy() bool { return e.current().healthy }

func (e *entry) lastErr() error { return e.current().err }

// evaluate runs the check once and publishes the new state.
func (e *entry) evaluate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	err := e.Func(ctx)
	healthy := e.healthy()
	if err != nil {
		e.passes = 0
		e.fails++
		if e.fails >= e.FailureThreshold {
			healthy = false
		}
	} else {
		e.fails = 0
		e.passes++
		if e.passes >= e.SuccessThreshold {
			healthy = true
		}
	}
	e.state.Store(&state{healthy: healthy, err: err})
}

// Health holds the check registry and readiness flag of one process.
type Health struct {
	ready atomic.Bool

	mu      sync.RWMutex
	entries []*entry
	cancel  context.CancelFunc
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds c. Zero timeouts and thresholds take the defaults.
func (h *Health) Register(c Check) error {
	if c.Name == "" || c.Name == notReadyKey {
		return errors.Errorf("invalid check name %q", c.Name)
	}
	if c.Func == nil {
		return errors.Errorf("check %q: nil func", c.Name)
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = defaultSuccessThreshold
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.Name == c.Name && e.Kind == c.Kind {
			return errors.Errorf("check %q already registered", c.Name)
		}
	}
	h.entries = append(h.entries, &entry{Check: c})
	return nil
}

// AddLivenessCheck registers a liveness check. It panics on invalid input,
// which is a wiring bug.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mustRegister(Liveness, name, timeout, fn, opts)
}

// AddReadinessCheck registers a readiness check, e.g. database or search
// connectivity. It panics on invalid input, which is a wiring bug.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mustRegister(Readiness, name, timeout, fn, opts)
}

func (h *Health) mustRegister(kind Kind, name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) {
	c := Check{Name: name, Kind: kind, Timeout: timeout, Func: fn}
	for _, o := range opts {
		o(&c)
	}
	if err := h.Register(c); err != nil {
		panic(err)
	}
}

func (h *Health) checks(kind Kind) []*entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*entry, 0, len(h.entries))
	for _, e := range h.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Start evaluates every registered check each interval until Stop or ctx
// ends. Checks registered after Start are not run.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	entries := slices.Clone(h.entries)
	h.mu.Unlock()

	for _, e := range entries {
		go loop(ctx, e, interval)
	}
}

func loop(ctx context.Context, e *entry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		e.evaluate(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the check goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady marks the process ready or, during shutdown, draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the process is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, e := range h.checks(Readiness) {
		if !e.healthy() {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, failures(h.checks(Liveness)))
}

// ReadyEndpoint serves /readyz. It fails while the process is not marked
// ready, even if every check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()
	failed := failures(h.checks(Readiness))
	if !ready {
		failed = append(failed, failure{name: notReadyKey, reason: "service is not ready"})
	}
	writeReport(w, failed)
}

type failure struct {
	name   string
	reason string
}

// failures lists the unhealthy entries sorted by name.
func failures(entries []*entry) []failure {
	var out []failure
	for _, e := range entries {
		s := e.current()
		if s.healthy {
			continue
		}
		reason := "check is unhealthy"
		if s.err != nil {
			reason = s.err.Error()
		}
		out = append(out, failure{name: e.Name, reason: reason})
	}
	return out
}

func writeReport(w http.ResponseWriter, failed []failure) {
	slices.SortFunc(failed, func(a, b failure) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		}
		return 0
	})

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if len(failed) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, f := range failed {
					e.Field(f.name, func(e *jx.Encoder) { e.Str(f.reason) })
				}
			})
		})
	})

	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
