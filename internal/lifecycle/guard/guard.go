// Package guard gates retrains and promotions behind pipeline-health
// conditions and the operator kill switch, and watches live model health
// for automatic rollback. Guard blocks are expected policy outcomes, not
// errors: every failing condition is reported with its specific reason.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Config holds the guard thresholds.
type Config struct {
	Cooldown                 time.Duration `json:"cooldown"`
	MinSampleCount           int           `json:"min_sample_count"`
	MaxDriftSeverity         float64       `json:"max_drift_severity"`
	MinLiveShare             float64       `json:"min_live_share"`
	MaxIngestionBacklog      int           `json:"max_ingestion_backlog"`
	ConsecutiveCriticalLimit int           `json:"consecutive_critical_limit"`
}

// DefaultConfig returns the production guard thresholds.
func DefaultConfig() Config {
	return Config{
		Cooldown:                 constants.DefaultGuardCooldown,
		MinSampleCount:           constants.DefaultMinSampleCount,
		MaxDriftSeverity:         constants.DefaultMaxDriftSeverity,
		MinLiveShare:             constants.DefaultMinLiveShare,
		MaxIngestionBacklog:      constants.DefaultMaxIngestionBacklog,
		ConsecutiveCriticalLimit: constants.DefaultCriticalWindowLimit,
	}
}

// Result is the outcome of a guard check. When Allowed is false, Reasons
// lists every failing condition, not just the first.
type Result struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons"`
}

// Guard evaluates all gate conditions before a retrain or promotion may
// proceed.
type Guard struct {
	config   Config
	switches interfaces.SwitchStore
	signals  interfaces.SignalSource
	logger   *logrus.Logger
	now      func() time.Time
}

// New creates a guard.
func New(config Config, switches interfaces.SwitchStore, signals interfaces.SignalSource, logger *logrus.Logger) *Guard {
	if logger == nil {
		logger = logrus.New()
	}
	return &Guard{
		config:   config,
		switches: switches,
		signals:  signals,
		logger:   logger,
		now:      time.Now,
	}
}

// Check gates a new retrain attempt. It evaluates every condition,
// cooldown included, and collects all failing reasons so a single audit
// entry explains the full picture.
func (g *Guard) Check(ctx context.Context, horizon models.Horizon) (Result, error) {
	return g.check(ctx, horizon, true)
}

// CheckPromotion gates the promotion of an already-trained candidate.
// The cooldown is skipped: it throttles new retrain attempts, and the
// attempt that produced this candidate has already stamped the clock.
func (g *Guard) CheckPromotion(ctx context.Context, horizon models.Horizon) (Result, error) {
	return g.check(ctx, horizon, false)
}

func (g *Guard) check(ctx context.Context, horizon models.Horizon, includeCooldown bool) (Result, error) {
	var reasons []string

	enabled, err := g.switches.KillSwitchEnabled(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read kill switch: %w", err)
	}
	if enabled {
		reasons = append(reasons, "kill switch is enabled")
	}

	if includeCooldown {
		last, err := g.switches.LastAttempt(ctx, horizon)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read last attempt: %w", err)
		}
		if !last.IsZero() {
			elapsed := g.now().Sub(last)
			if elapsed < g.config.Cooldown {
				reasons = append(reasons, fmt.Sprintf(
					"cooldown active: %s since last attempt, need %s",
					elapsed.Round(time.Second), g.config.Cooldown))
			}
		}
	}

	sig, err := g.signals.Signals(ctx, horizon)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read guard signals: %w", err)
	}

	if sig.SampleCount < g.config.MinSampleCount {
		reasons = append(reasons, fmt.Sprintf(
			"insufficient samples: %d < %d", sig.SampleCount, g.config.MinSampleCount))
	}
	if sig.DriftSeverity > g.config.MaxDriftSeverity {
		reasons = append(reasons, fmt.Sprintf(
			"drift severity %.2f above ceiling %.2f", sig.DriftSeverity, g.config.MaxDriftSeverity))
	}
	if sig.LiveShare < g.config.MinLiveShare {
		reasons = append(reasons, fmt.Sprintf(
			"live data share %.0f%% below minimum %.0f%%", sig.LiveShare*100, g.config.MinLiveShare*100))
	}
	if !sig.SchemaIntact {
		reasons = append(reasons, "dataset schema integrity check failed")
	}
	if sig.IngestionBacklog > g.config.MaxIngestionBacklog {
		reasons = append(reasons, fmt.Sprintf(
			"ingestion backlog %d above limit %d", sig.IngestionBacklog, g.config.MaxIngestionBacklog))
	}

	if len(reasons) > 0 {
		g.logger.WithFields(logrus.Fields{
			"horizon": horizon,
			"reasons": reasons,
		}).Info("Guard blocked lifecycle action")
		return Result{Allowed: false, Reasons: reasons}, nil
	}

	return Result{Allowed: true}, nil
}

// RecordAttempt stamps the cooldown clock for the horizon.
func (g *Guard) RecordAttempt(ctx context.Context, horizon models.Horizon) error {
	return g.switches.RecordAttempt(ctx, horizon, g.now().UTC())
}

// ShouldAutoRollback reports whether the state's consecutive critical
// windows have reached the configured limit.
func (g *Guard) ShouldAutoRollback(st *models.ActiveModelState) bool {
	return st != nil && st.ConsecutiveCriticalWindows >= g.config.ConsecutiveCriticalLimit
}
