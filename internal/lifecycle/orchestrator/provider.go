package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/alphaintel/modelgov/internal/lifecycle/policy"
	"github.com/alphaintel/modelgov/internal/lifecycle/shadow"
	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// EvaluationProvider supplies the evaluation inputs the cycle cannot
// compute itself: the labeled held-out window for the shadow comparison
// and the live-quality metrics (precision, false positive rate,
// calibration, lift) fed into the evaluation policy.
type EvaluationProvider interface {
	HeldOutSample(ctx context.Context, task models.Task, network string) (shadow.Sample, error)
	PolicyMetrics(ctx context.Context, active, candidate *models.ModelVersion) (baseline, cand policy.Metrics, sampleCount int, err error)
}

// StaticProvider serves preloaded evaluation inputs. Used in tests and
// local development without a scoring pipeline.
type StaticProvider struct {
	mu      sync.RWMutex
	samples map[string]shadow.Sample
	evals   map[string]staticEval
}

type staticEval struct {
	baseline    policy.Metrics
	candidate   policy.Metrics
	sampleCount int
}

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		samples: make(map[string]shadow.Sample),
		evals:   make(map[string]staticEval),
	}
}

func pairKey(task models.Task, network string) string {
	return string(task) + "/" + network
}

// SetSample registers the held-out window for the pair.
func (p *StaticProvider) SetSample(task models.Task, network string, sample shadow.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples[pairKey(task, network)] = sample
}

// SetEvaluation registers policy inputs for the pair.
func (p *StaticProvider) SetEvaluation(task models.Task, network string, baseline, candidate policy.Metrics, sampleCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals[pairKey(task, network)] = staticEval{
		baseline:    baseline,
		candidate:   candidate,
		sampleCount: sampleCount,
	}
}

// HeldOutSample returns the registered window.
func (p *StaticProvider) HeldOutSample(ctx context.Context, task models.Task, network string) (shadow.Sample, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sample, ok := p.samples[pairKey(task, network)]
	if !ok {
		return shadow.Sample{}, errors.NewStorageError(errors.CodeReadFailed, fmt.Sprintf("No held-out sample for %s/%s", task, network))
	}
	return sample, nil
}

// PolicyMetrics returns the registered policy inputs.
func (p *StaticProvider) PolicyMetrics(ctx context.Context, active, candidate *models.ModelVersion) (policy.Metrics, policy.Metrics, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	eval, ok := p.evals[pairKey(candidate.Task, candidate.Network)]
	if !ok {
		return policy.Metrics{}, policy.Metrics{}, 0, errors.NewStorageError(errors.CodeReadFailed, fmt.Sprintf("No evaluation inputs for %s/%s", candidate.Task, candidate.Network))
	}
	return eval.baseline, eval.candidate, eval.sampleCount, nil
}
