package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunAllHealthy(t *testing.T) {
	c := NewChecker(nil)
	c.Register("a", true, func(ctx context.Context) error { return nil })
	c.Register("b", false, func(ctx context.Context) error { return nil })

	report := c.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
}

func TestRunCriticalFailureIsUnhealthy(t *testing.T) {
	c := NewChecker(nil)
	c.Register("db", true, func(ctx context.Context) error { return errors.New("connection refused") })
	c.Register("cache", false, func(ctx context.Context) error { return nil })

	report := c.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusUnhealthy, report.Checks[0].Status)
	assert.Equal(t, "connection refused", report.Checks[0].Error)
}

func TestRunNonCriticalFailureDegrades(t *testing.T) {
	c := NewChecker(nil)
	c.Register("db", true, func(ctx context.Context) error { return nil })
	c.Register("ledger", false, func(ctx context.Context) error { return errors.New("slow") })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestRunEmptyChecker(t *testing.T) {
	c := NewChecker(nil)
	report := c.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Checks)
}
