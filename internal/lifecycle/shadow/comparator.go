// Package shadow compares a shadow candidate against the active model
// over the same held-out sample and renders a PASS/FAIL/INCONCLUSIVE
// verdict. Verdict rules are versioned so historical comparisons remain
// interpretable after threshold changes.
package shadow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Prediction is one scored row: the label the model emitted and the
// observed outcome.
type Prediction struct {
	Predicted bool
	Actual    bool
}

// Sample is the held-out window both models are scored on.
type Sample struct {
	WindowLabel string
	FromTs      time.Time
	ToTs        time.Time
	Active      []Prediction
	Shadow      []Prediction
}

// Thresholds are the verdict rules. Zero values fall back to the v1
// defaults.
type Thresholds struct {
	MinRows              int     `json:"min_rows"`
	PassMinF1Delta       float64 `json:"pass_min_f1_delta"`
	PassMinAccuracyDelta float64 `json:"pass_min_accuracy_delta"`
	FailMaxF1Delta       float64 `json:"fail_max_f1_delta"`
	FailMaxAccuracyDelta float64 `json:"fail_max_accuracy_delta"`
}

// DefaultThresholds returns the v1 rule set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinRows:              constants.DefaultMinComparisonRows,
		PassMinF1Delta:       constants.DefaultPassMinF1Delta,
		PassMinAccuracyDelta: constants.DefaultPassMinAccuracyDelta,
		FailMaxF1Delta:       constants.DefaultFailMaxF1Delta,
		FailMaxAccuracyDelta: constants.DefaultFailMaxAccuracyDelta,
	}
}

// Comparator computes classification metrics for both models and applies
// the verdict rules. Compare is deterministic: identical inputs always
// produce the identical comparison record (modulo id and timestamp).
type Comparator struct {
	logger     *logrus.Logger
	thresholds Thresholds
}

// NewComparator creates a comparator with the given thresholds.
func NewComparator(thresholds Thresholds, logger *logrus.Logger) *Comparator {
	if thresholds.MinRows <= 0 {
		thresholds = DefaultThresholds()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Comparator{logger: logger, thresholds: thresholds}
}

// Compare scores both models over the sample and renders a verdict.
func (c *Comparator) Compare(ctx context.Context, active, shadow *models.ModelVersion, sample Sample) (*models.ShadowComparison, error) {
	if len(sample.Active) == 0 && len(sample.Shadow) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "Held-out sample is empty")
	}
	if len(sample.Active) != len(sample.Shadow) {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "Active and shadow predictions cover different rows").
			WithContext("activeRows", len(sample.Active)).
			WithContext("shadowRows", len(sample.Shadow))
	}

	metricsActive := computeMetrics(sample.Active)
	metricsShadow := computeMetrics(sample.Shadow)

	delta := models.MetricsDelta{
		Accuracy:  round4(metricsShadow.Accuracy - metricsActive.Accuracy),
		Precision: round4(metricsShadow.Precision - metricsActive.Precision),
		Recall:    round4(metricsShadow.Recall - metricsActive.Recall),
		F1Score:   round4(metricsShadow.F1Score - metricsActive.F1Score),
	}

	verdict := c.verdict(len(sample.Active), delta)

	cmp := &models.ShadowComparison{
		ID:                 uuid.New().String(),
		Task:               shadow.Task,
		Network:            shadow.Network,
		WindowLabel:        sample.WindowLabel,
		ActiveModelVersion: active.ModelID,
		ShadowModelVersion: shadow.ModelID,
		Sample: models.SampleWindow{
			Rows:   len(sample.Active),
			FromTs: sample.FromTs,
			ToTs:   sample.ToTs,
		},
		MetricsActive: metricsActive,
		MetricsShadow: metricsShadow,
		Delta:         delta,
		Verdict:       verdict,
		ComparedAt:    time.Now().UTC(),
	}

	c.logger.WithFields(logrus.Fields{
		"task":    shadow.Task,
		"network": shadow.Network,
		"rows":    cmp.Sample.Rows,
		"f1Delta": delta.F1Score,
		"verdict": verdict.Status,
	}).Info("Shadow comparison completed")

	return cmp, nil
}

// verdict applies the versioned rule set. Degradation is checked before
// improvement on purpose: a candidate that is slightly better on F1 but
// worse on accuracy beyond tolerance must FAIL, not PASS.
func (c *Comparator) verdict(rows int, delta models.MetricsDelta) models.Verdict {
	t := c.thresholds

	if rows < t.MinRows {
		return models.Verdict{
			Status:       models.VerdictInconclusive,
			Reason:       fmt.Sprintf("not enough rows: %d < %d", rows, t.MinRows),
			RulesVersion: constants.ComparatorRulesVersion,
		}
	}

	if delta.F1Score <= t.FailMaxF1Delta {
		return models.Verdict{
			Status:       models.VerdictFail,
			Reason:       fmt.Sprintf("f1 delta %.4f at or below fail threshold %.4f", delta.F1Score, t.FailMaxF1Delta),
			RulesVersion: constants.ComparatorRulesVersion,
		}
	}
	if delta.Accuracy <= t.FailMaxAccuracyDelta {
		return models.Verdict{
			Status:       models.VerdictFail,
			Reason:       fmt.Sprintf("accuracy delta %.4f at or below fail threshold %.4f", delta.Accuracy, t.FailMaxAccuracyDelta),
			RulesVersion: constants.ComparatorRulesVersion,
		}
	}

	if delta.F1Score >= t.PassMinF1Delta && delta.Accuracy >= t.PassMinAccuracyDelta {
		return models.Verdict{
			Status:       models.VerdictPass,
			Reason:       fmt.Sprintf("f1 delta %.4f and accuracy delta %.4f meet pass thresholds", delta.F1Score, delta.Accuracy),
			RulesVersion: constants.ComparatorRulesVersion,
		}
	}

	return models.Verdict{
		Status:       models.VerdictInconclusive,
		Reason:       "deltas within tolerance band, no clear winner",
		RulesVersion: constants.ComparatorRulesVersion,
	}
}

// computeMetrics derives accuracy, precision, recall and F1 from the
// confusion counts of a prediction set.
func computeMetrics(preds []Prediction) models.ClassifierMetrics {
	var tp, tn, fp, fn int
	for _, p := range preds {
		switch {
		case p.Predicted && p.Actual:
			tp++
		case p.Predicted && !p.Actual:
			fp++
		case !p.Predicted && p.Actual:
			fn++
		default:
			tn++
		}
	}

	total := tp + tn + fp + fn
	var accuracy, precision, recall, f1 float64
	if total > 0 {
		accuracy = float64(tp+tn) / float64(total)
	}
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return models.ClassifierMetrics{
		Accuracy:  round4(accuracy),
		Precision: round4(precision),
		Recall:    round4(recall),
		F1Score:   round4(f1),
	}
}

// round4 rounds to four decimal places so repeated comparisons over
// identical inputs stay byte-for-byte stable.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
