// Package health probes the subsystems the lifecycle service depends on
// and aggregates them into a single readiness report served over HTTP.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the aggregated or per-check health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency and returns an error when it is down.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	timeout  time.Duration
	fn       CheckFunc
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Critical bool          `json:"critical"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// Report aggregates all probe results. A failed critical check makes the
// whole report unhealthy; a failed non-critical check only degrades it.
type Report struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Checker runs registered dependency probes on demand.
type Checker struct {
	mu     sync.RWMutex
	checks []check
	logger *logrus.Logger
}

// NewChecker creates an empty checker.
func NewChecker(logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Checker{logger: logger}
}

// Register adds a probe. Critical probes gate readiness; non-critical
// ones only mark the service degraded.
func (c *Checker) Register(name string, critical bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{
		name:     name,
		critical: critical,
		timeout:  5 * time.Second,
		fn:       fn,
	})
}

// Run executes every probe and aggregates the report.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Checks:    make([]CheckResult, 0, len(checks)),
		CheckedAt: time.Now().UTC(),
	}

	for _, ch := range checks {
		result := c.run(ctx, ch)
		report.Checks = append(report.Checks, result)

		if result.Status == StatusHealthy {
			continue
		}
		if ch.critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	return report
}

func (c *Checker) run(ctx context.Context, ch check) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, ch.timeout)
	defer cancel()

	start := time.Now()
	err := ch.fn(probeCtx)
	elapsed := time.Since(start)

	result := CheckResult{
		Name:     ch.name,
		Status:   StatusHealthy,
		Critical: ch.critical,
		Duration: elapsed / time.Millisecond,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		c.logger.WithError(err).WithField("check", ch.name).Warn("Health check failed")
	}
	return result
}
