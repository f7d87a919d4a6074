package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// Pinger is a dependency that answers a ping, such as *pgxpool.Pool or the
// search index.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the error of p.Ping.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines, which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent stop-the-world GC pause exceeded
// threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}
