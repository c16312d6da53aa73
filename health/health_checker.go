// Package health reports the status of the substitute engine's dependencies.
package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Health statuses, worst last.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultTimeout bounds each dependency ping.
const DefaultTimeout = 2 * time.Second

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is one checked component. A failing critical dependency makes the
// service unhealthy; any other failure only degrades it.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Critical bool
}

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	deps    []Dependency
	timeout time.Duration
}

// NewHealthChecker creates a checker over deps. A non-positive timeout uses DefaultTimeout.
func NewHealthChecker(timeout time.Duration, deps ...Dependency) *HealthCheckerImpl {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HealthCheckerImpl{deps: deps, timeout: timeout}
}

type result struct {
	dep     Dependency
	err     error
	latency time.Duration
}

// HealthCheck pings every dependency concurrently and returns the overall
// status, per-dependency details and the joined failures.
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (string, map[string]any, error) {
	results := make([]result, len(h.deps))

	var wg sync.WaitGroup
	for i, dep := range h.deps {
		wg.Add(1)
		go func(i int, dep Dependency) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := dep.Pinger.Ping(cctx)
			results[i] = result{dep: dep, err: err, latency: time.Since(start)}
		}(i, dep)
	}
	wg.Wait()

	status := StatusHealthy
	details := make(map[string]any, len(results))
	var errs []error

	for _, r := range results {
		entry := map[string]any{
			"status":     "up",
			"critical":   r.dep.Critical,
			"latency_ms": math.Round(float64(r.latency.Microseconds())/10) / 100,
		}
		if r.err != nil {
			entry["status"] = "down"
			entry["error"] = r.err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", r.dep.Name, r.err))

			switch {
			case r.dep.Critical:
				status = StatusUnhealthy
			case status == StatusHealthy:
				status = StatusDegraded
			}
		}
		details[r.dep.Name] = entry
	}

	return status, details, errors.Join(errs...)
}
