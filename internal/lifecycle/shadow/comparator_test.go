package shadow

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaintel/modelgov/pkg/models"
)

func testThresholds() Thresholds {
	return Thresholds{
		MinRows:              10,
		PassMinF1Delta:       0.01,
		PassMinAccuracyDelta: 0.0,
		FailMaxF1Delta:       -0.03,
		FailMaxAccuracyDelta: -0.03,
	}
}

func mv(id string) *models.ModelVersion {
	return &models.ModelVersion{
		ModelID: id,
		Task:    models.TaskMarketClassifier,
		Network: "ethereum",
	}
}

// predictions builds a set with the given confusion counts.
func predictions(tp, fp, fn, tn int) []Prediction {
	var out []Prediction
	for i := 0; i < tp; i++ {
		out = append(out, Prediction{Predicted: true, Actual: true})
	}
	for i := 0; i < fp; i++ {
		out = append(out, Prediction{Predicted: true, Actual: false})
	}
	for i := 0; i < fn; i++ {
		out = append(out, Prediction{Predicted: false, Actual: true})
	}
	for i := 0; i < tn; i++ {
		out = append(out, Prediction{Predicted: false, Actual: false})
	}
	return out
}

func TestComputeMetricsFromConfusionCounts(t *testing.T) {
	m := computeMetrics(predictions(4, 1, 1, 4))

	assert.InDelta(t, 0.8, m.Accuracy, 1e-9)
	assert.InDelta(t, 0.8, m.Precision, 1e-9)
	assert.InDelta(t, 0.8, m.Recall, 1e-9)
	assert.InDelta(t, 0.8, m.F1Score, 1e-9)
}

func TestCompareInconclusiveOnShortSample(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	sample := Sample{
		WindowLabel: "w1",
		Active:      predictions(2, 1, 1, 1),
		Shadow:      predictions(3, 1, 1, 0),
	}

	cmp, err := c.Compare(context.Background(), mv("active-1"), mv("shadow-1"), sample)
	require.NoError(t, err)

	assert.Equal(t, models.VerdictInconclusive, cmp.Verdict.Status)
	assert.Contains(t, cmp.Verdict.Reason, "not enough rows")
	assert.Equal(t, "v1", cmp.Verdict.RulesVersion)
}

func TestVerdictFailCheckedBeforePass(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	// F1 delta well below the fail threshold must FAIL even though the
	// accuracy delta alone would qualify for PASS.
	delta := models.MetricsDelta{F1Score: -0.05, Accuracy: 0.02}
	v := c.verdict(100, delta)

	assert.Equal(t, models.VerdictFail, v.Status)
	assert.Contains(t, v.Reason, "f1 delta")
}

func TestVerdictFailOnAccuracyRegression(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	delta := models.MetricsDelta{F1Score: 0.02, Accuracy: -0.04}
	v := c.verdict(100, delta)

	assert.Equal(t, models.VerdictFail, v.Status)
	assert.Contains(t, v.Reason, "accuracy delta")
}

func TestVerdictPassRequiresBothThresholds(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	assert.Equal(t, models.VerdictPass, c.verdict(100, models.MetricsDelta{F1Score: 0.02, Accuracy: 0.01}).Status)
	// F1 improves but accuracy slips inside the tolerance band.
	assert.Equal(t, models.VerdictInconclusive, c.verdict(100, models.MetricsDelta{F1Score: 0.02, Accuracy: -0.01}).Status)
	// Neither threshold reached.
	assert.Equal(t, models.VerdictInconclusive, c.verdict(100, models.MetricsDelta{F1Score: 0.005, Accuracy: 0.0}).Status)
}

func TestCompareDeltasRoundedToFourDecimals(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	// 1/3 style ratios produce long fractions that must be rounded.
	sample := Sample{
		Active: predictions(1, 2, 0, 0),
		Shadow: predictions(2, 1, 0, 0),
	}
	// Pad to clear the row minimum without changing counts asymmetrically.
	for i := 0; i < 9; i++ {
		sample.Active = append(sample.Active, Prediction{Predicted: false, Actual: false})
		sample.Shadow = append(sample.Shadow, Prediction{Predicted: false, Actual: false})
	}

	cmp, err := c.Compare(context.Background(), mv("a"), mv("s"), sample)
	require.NoError(t, err)

	for _, v := range []float64{cmp.Delta.Accuracy, cmp.Delta.Precision, cmp.Delta.Recall, cmp.Delta.F1Score} {
		assert.Equal(t, math.Round(v*10000)/10000, v)
	}
}

func TestCompareDeterministic(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	sample := Sample{
		WindowLabel: "w42",
		FromTs:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		ToTs:        time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC),
		Active:      predictions(40, 10, 10, 40),
		Shadow:      predictions(45, 5, 5, 45),
	}

	first, err := c.Compare(context.Background(), mv("a"), mv("s"), sample)
	require.NoError(t, err)
	second, err := c.Compare(context.Background(), mv("a"), mv("s"), sample)
	require.NoError(t, err)

	assert.Equal(t, first.Delta, second.Delta)
	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, first.MetricsActive, second.MetricsActive)
	assert.Equal(t, first.MetricsShadow, second.MetricsShadow)
}

func TestCompareRejectsMismatchedSamples(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	sample := Sample{
		Active: predictions(5, 5, 5, 5),
		Shadow: predictions(5, 5, 5, 4),
	}

	_, err := c.Compare(context.Background(), mv("a"), mv("s"), sample)
	assert.Error(t, err)
}

func TestCompareRejectsEmptySample(t *testing.T) {
	c := NewComparator(testThresholds(), nil)

	_, err := c.Compare(context.Background(), mv("a"), mv("s"), Sample{})
	assert.Error(t, err)
}
