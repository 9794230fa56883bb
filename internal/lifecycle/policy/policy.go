// Package policy holds the promotion decision logic. Apply is a pure
// function: the same candidate, baseline, policy and sample count always
// yield the same decision and reasons, and every branch produces at least
// one human-readable reason so nobody downstream has to re-derive "why"
// from raw numbers.
package policy

import (
	"fmt"

	"github.com/alphaintel/modelgov/pkg/constants"
)

// Outcome is the evaluation decision.
type Outcome string

const (
	OutcomePromote Outcome = "PROMOTE"
	OutcomeHold    Outcome = "HOLD"
	OutcomeReject  Outcome = "REJECT"
)

// Metrics are the evaluation inputs for one model.
type Metrics struct {
	Precision         float64 `json:"precision"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	CalibrationError  float64 `json:"calibration_error"`
	Lift              float64 `json:"lift"`
}

// Policy holds the decision thresholds.
type Policy struct {
	MaxPrecisionDrop        float64 `json:"max_precision_drop"`
	MaxFPRIncrease          float64 `json:"max_fpr_increase"`
	MaxECEIncrease          float64 `json:"max_ece_increase"`
	MinPrecisionImprovement float64 `json:"min_precision_improvement"`
	MinLiftImprovement      float64 `json:"min_lift_improvement"`
	StabilityThreshold      int     `json:"stability_threshold"`
}

// Default returns the production policy thresholds.
func Default() Policy {
	return Policy{
		MaxPrecisionDrop:        constants.DefaultMaxPrecisionDrop,
		MaxFPRIncrease:          constants.DefaultMaxFPRIncrease,
		MaxECEIncrease:          constants.DefaultMaxECEIncrease,
		MinPrecisionImprovement: constants.DefaultMinPrecisionImprovement,
		MinLiftImprovement:      constants.DefaultMinLiftImprovement,
		StabilityThreshold:      constants.DefaultStabilityThreshold,
	}
}

// Deltas are candidate minus baseline per metric.
type Deltas struct {
	Precision         float64 `json:"precision"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	CalibrationError  float64 `json:"calibration_error"`
	Lift              float64 `json:"lift"`
}

// Checks records the individual gate results that produced the decision.
type Checks struct {
	PrecisionDropExceeded bool `json:"precision_drop_exceeded"`
	FPRIncreaseExceeded   bool `json:"fpr_increase_exceeded"`
	ECEIncreaseExceeded   bool `json:"ece_increase_exceeded"`
	PrecisionImproved     bool `json:"precision_improved"`
	LiftImproved          bool `json:"lift_improved"`
	SampleCountSufficient bool `json:"sample_count_sufficient"`
}

// Decision is the full evaluation result.
type Decision struct {
	Outcome Outcome  `json:"outcome"`
	Reasons []string `json:"reasons"`
	Checks  Checks   `json:"checks"`
	Deltas  Deltas   `json:"deltas"`
}

// Apply evaluates the candidate against the baseline. Precedence, first
// match wins: REJECT on any safety degradation, then PROMOTE on a real
// improvement with enough samples, then HOLD.
func Apply(candidate, baseline Metrics, p Policy, sampleCount int) Decision {
	deltas := Deltas{
		Precision:         candidate.Precision - baseline.Precision,
		FalsePositiveRate: candidate.FalsePositiveRate - baseline.FalsePositiveRate,
		CalibrationError:  candidate.CalibrationError - baseline.CalibrationError,
		Lift:              candidate.Lift - baseline.Lift,
	}

	checks := Checks{
		PrecisionDropExceeded: deltas.Precision < -p.MaxPrecisionDrop,
		FPRIncreaseExceeded:   deltas.FalsePositiveRate > p.MaxFPRIncrease,
		ECEIncreaseExceeded:   deltas.CalibrationError > p.MaxECEIncrease,
		PrecisionImproved:     deltas.Precision >= p.MinPrecisionImprovement,
		LiftImproved:          deltas.Lift >= p.MinLiftImprovement,
		SampleCountSufficient: sampleCount >= p.StabilityThreshold,
	}

	d := Decision{Checks: checks, Deltas: deltas}

	if checks.PrecisionDropExceeded {
		d.Reasons = append(d.Reasons, fmt.Sprintf(
			"Precision dropped by %.1f%% (max allowed %.1f%%)",
			-deltas.Precision*100, p.MaxPrecisionDrop*100))
	}
	if checks.FPRIncreaseExceeded {
		d.Reasons = append(d.Reasons, fmt.Sprintf(
			"False positive rate rose by %.1f%% (max allowed %.1f%%)",
			deltas.FalsePositiveRate*100, p.MaxFPRIncrease*100))
	}
	if checks.ECEIncreaseExceeded {
		d.Reasons = append(d.Reasons, fmt.Sprintf(
			"Calibration error rose by %.3f (max allowed %.3f)",
			deltas.CalibrationError, p.MaxECEIncrease))
	}
	if len(d.Reasons) > 0 {
		d.Outcome = OutcomeReject
		return d
	}

	if checks.PrecisionImproved || checks.LiftImproved {
		if checks.PrecisionImproved {
			d.Reasons = append(d.Reasons, fmt.Sprintf(
				"Precision improved by %.1f%%", deltas.Precision*100))
		}
		if checks.LiftImproved {
			d.Reasons = append(d.Reasons, fmt.Sprintf(
				"Lift improved by %.2f", deltas.Lift))
		}

		if !checks.SampleCountSufficient {
			// Improvement exists but is not yet trustworthy.
			d.Outcome = OutcomeHold
			d.Reasons = append(d.Reasons, fmt.Sprintf(
				"Insufficient samples: %d < %d", sampleCount, p.StabilityThreshold))
			return d
		}

		d.Outcome = OutcomePromote
		return d
	}

	d.Outcome = OutcomeHold
	d.Reasons = append(d.Reasons, "Stable, no clear improvement")
	return d
}
