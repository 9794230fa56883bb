package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaintel/modelgov/internal/dataset"
	"github.com/alphaintel/modelgov/internal/lifecycle/audit"
	"github.com/alphaintel/modelgov/internal/lifecycle/guard"
	"github.com/alphaintel/modelgov/internal/lifecycle/policy"
	"github.com/alphaintel/modelgov/internal/lifecycle/queue"
	"github.com/alphaintel/modelgov/internal/lifecycle/registry"
	"github.com/alphaintel/modelgov/internal/lifecycle/shadow"
	"github.com/alphaintel/modelgov/internal/lifecycle/state"
	"github.com/alphaintel/modelgov/internal/observability/metrics"
	"github.com/alphaintel/modelgov/internal/training"
	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// harness wires the full cycle against in-memory backends.
type harness struct {
	queue    *queue.MemoryQueue
	registry *registry.ModelRegistry
	state    *state.MemoryStore
	switches *guard.MemorySwitchStore
	signals  *guard.StaticSignalSource
	provider EvaluationProvider
	static   *StaticProvider
	executor training.Executor
	writer   *audit.MemoryWriter
	sink     *audit.Log
	orch     *Orchestrator
}

func testPolicy() policy.Policy {
	return policy.Policy{
		MaxPrecisionDrop:        0.02,
		MaxFPRIncrease:          0.01,
		MaxECEIncrease:          0.02,
		MinPrecisionImprovement: 0.01,
		MinLiftImprovement:      0.05,
		StabilityThreshold:      50,
	}
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()

	h := &harness{
		switches: guard.NewMemorySwitchStore(),
		signals:  guard.NewStaticSignalSource(),
		static:   NewStaticProvider(),
		writer:   audit.NewMemoryWriter(0),
	}
	h.sink = audit.NewLog(h.writer, nil, nil)
	h.queue = queue.NewMemoryQueue(h.sink, nil)
	h.registry = registry.NewModelRegistry(nil, nil, nil)
	h.state = state.NewMemoryStore(nil)
	h.provider = h.static
	h.executor = training.NewSimulatedExecutor(1)

	for _, opt := range opts {
		opt(h)
	}

	// Cooldown zero so repeated cycles in one test are not throttled.
	g := guard.New(guard.Config{
		Cooldown:                 0,
		MinSampleCount:           100,
		MaxDriftSeverity:         0.30,
		MinLiveShare:             0.60,
		MaxIngestionBacklog:      1000,
		ConsecutiveCriticalLimit: 3,
	}, h.switches, h.signals, nil)

	comparator := shadow.NewComparator(shadow.Thresholds{
		MinRows:              10,
		PassMinF1Delta:       0.01,
		PassMinAccuracyDelta: 0.0,
		FailMaxF1Delta:       -0.02,
		FailMaxAccuracyDelta: -0.02,
	}, nil)

	h.orch = New(Config{Policy: testPolicy()}, Deps{
		Queue:      h.queue,
		Registry:   h.registry,
		State:      h.state,
		Guard:      g,
		Comparator: comparator,
		Executor:   h.executor,
		Provider:   h.provider,
		Switches:   h.switches,
		Audit:      h.sink,
	}, nil)

	t.Cleanup(h.sink.Close)
	return h
}

func testSpec() LoopSpec {
	return LoopSpec{
		Horizon: models.Horizon7d,
		Task:    models.TaskMarketClassifier,
		Network: "ethereum",
	}
}

// predictions builds a row set from confusion counts.
func predictions(tp, fp, fn, tn int) []shadow.Prediction {
	out := make([]shadow.Prediction, 0, tp+fp+fn+tn)
	for i := 0; i < tp; i++ {
		out = append(out, shadow.Prediction{Predicted: true, Actual: true})
	}
	for i := 0; i < fp; i++ {
		out = append(out, shadow.Prediction{Predicted: true, Actual: false})
	}
	for i := 0; i < fn; i++ {
		out = append(out, shadow.Prediction{Predicted: false, Actual: true})
	}
	for i := 0; i < tn; i++ {
		out = append(out, shadow.Prediction{Predicted: false, Actual: false})
	}
	return out
}

// passingSample makes the shadow model a clear winner over the active.
func passingSample() shadow.Sample {
	return shadow.Sample{
		WindowLabel: "2026-08-w3",
		Active:      predictions(4, 1, 1, 4),
		Shadow:      predictions(5, 0, 0, 5),
	}
}

// failingSample makes the shadow model clearly worse.
func failingSample() shadow.Sample {
	return shadow.Sample{
		WindowLabel: "2026-08-w3",
		Active:      predictions(5, 0, 0, 5),
		Shadow:      predictions(3, 2, 2, 3),
	}
}

// seedActive trains and promotes a first model so later cycles compare
// against a real baseline.
func seedActive(t *testing.T, h *harness, spec LoopSpec) *models.ModelVersion {
	t.Helper()
	ctx := context.Background()

	mv := &models.ModelVersion{
		ModelID: "baseline",
		Task:    spec.Task,
		Network: spec.Network,
		Metrics: models.ClassifierMetrics{Accuracy: 0.82, Precision: 0.80, Recall: 0.78, F1Score: 0.79},
	}
	require.NoError(t, h.registry.Register(ctx, mv))
	_, err := h.registry.Promote(ctx, mv.ModelID)
	require.NoError(t, err)
	_, err = h.state.AtomicSwitch(ctx, spec.Horizon, mv.ModelID, models.SwitchReasonPromotion)
	require.NoError(t, err)
	return mv
}

func auditActions(t *testing.T, h *harness) []models.AuditAction {
	t.Helper()
	entries, err := h.writer.Recent(context.Background(), 100, interfaces.AuditFilter{})
	require.NoError(t, err)
	actions := make([]models.AuditAction, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func TestRunCycleFirstModelGoesActive(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInitialActive, outcome)

	active, err := h.registry.GetActive(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusActive, active.Status)
	// The orchestrator mints the candidate identity itself; the registry
	// rejects versions without one.
	assert.NotEmpty(t, active.ModelID)

	st, err := h.state.Get(ctx, spec.Horizon)
	require.NoError(t, err)
	assert.Equal(t, active.ModelID, st.ActiveModelID)
	assert.Equal(t, models.SwitchReasonInitial, st.SwitchReason)

	jobs, err := h.queue.List(ctx, interfaces.JobFilter{Status: models.JobStatusDone})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRunCyclePromotesImprovedCandidate(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	baseline := seedActive(t, h, spec)
	h.static.SetSample(spec.Task, spec.Network, passingSample())
	h.static.SetEvaluation(spec.Task, spec.Network,
		policy.Metrics{Precision: 0.80, FalsePositiveRate: 0.05, CalibrationError: 0.03, Lift: 2.0},
		policy.Metrics{Precision: 0.83, FalsePositiveRate: 0.05, CalibrationError: 0.03, Lift: 2.1},
		200)

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomePromoted, outcome)

	active, err := h.registry.GetActive(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	assert.NotEqual(t, baseline.ModelID, active.ModelID)

	demoted, err := h.registry.Get(ctx, baseline.ModelID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusArchived, demoted.Status)

	st, err := h.state.Get(ctx, spec.Horizon)
	require.NoError(t, err)
	assert.Equal(t, active.ModelID, st.ActiveModelID)
	assert.Equal(t, baseline.ModelID, st.PreviousModelID)

	h.sink.Close()
	actions := auditActions(t, h)
	assert.Contains(t, actions, models.AuditTrainStarted)
	assert.Contains(t, actions, models.AuditTrainFinished)
	assert.Contains(t, actions, models.AuditEvaluated)
	assert.Contains(t, actions, models.AuditPromoteSucceeded)
}

func TestRunCycleHoldsOnInsufficientSamples(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	baseline := seedActive(t, h, spec)
	h.static.SetSample(spec.Task, spec.Network, passingSample())
	// Better metrics but only 10 evaluation samples against a
	// stability threshold of 50.
	h.static.SetEvaluation(spec.Task, spec.Network,
		policy.Metrics{Precision: 0.80, FalsePositiveRate: 0.05, CalibrationError: 0.03, Lift: 2.0},
		policy.Metrics{Precision: 0.84, FalsePositiveRate: 0.04, CalibrationError: 0.03, Lift: 2.2},
		10)

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHeld, outcome)

	// The candidate stays shadow and the active model is untouched.
	active, err := h.registry.GetActive(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	assert.Equal(t, baseline.ModelID, active.ModelID)

	candidates, err := h.registry.GetShadowCandidates(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	h.sink.Close()
	entries, err := h.writer.Recent(ctx, 100, interfaces.AuditFilter{Action: models.AuditEvaluated})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(policy.OutcomeHold), entries[0].Decision)

	jobs, err := h.queue.List(ctx, interfaces.JobFilter{Status: models.JobStatusDone})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRunCycleRejectDominatesImprovement(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	baseline := seedActive(t, h, spec)
	h.static.SetSample(spec.Task, spec.Network, passingSample())
	// Lift improves but the false positive rate degradation must win.
	h.static.SetEvaluation(spec.Task, spec.Network,
		policy.Metrics{Precision: 0.80, FalsePositiveRate: 0.05, CalibrationError: 0.03, Lift: 2.0},
		policy.Metrics{Precision: 0.81, FalsePositiveRate: 0.09, CalibrationError: 0.03, Lift: 2.5},
		200)

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)

	active, err := h.registry.GetActive(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	assert.Equal(t, baseline.ModelID, active.ModelID)

	h.sink.Close()
	entries, err := h.writer.Recent(ctx, 100, interfaces.AuditFilter{Action: models.AuditEvaluated})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(policy.OutcomeReject), entries[0].Decision)
	assert.Contains(t, entries[0].Reason, "False positive rate rose")
}

func TestRunCycleRejectsOnShadowComparisonFail(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	seedActive(t, h, spec)
	h.static.SetSample(spec.Task, spec.Network, failingSample())

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)

	candidates, err := h.registry.GetShadowCandidates(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestRunCycleKillSwitchBlocksBeforeJobCreation(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	require.NoError(t, h.switches.SetKillSwitch(ctx, true))

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGuardBlocked, outcome)

	// No job was created and nothing was trained or registered.
	jobs, err := h.queue.List(ctx, interfaces.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	all, err := h.registry.List(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, all)

	h.sink.Close()
	entries, err := h.writer.Recent(ctx, 100, interfaces.AuditFilter{Action: models.AuditGuardBlocked})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Reason, "kill switch is enabled")
}

// failingExecutor rejects every training run.
type failingExecutor struct{}

func (failingExecutor) Train(ctx context.Context, job *models.RetrainJob) (*training.Result, error) {
	return nil, errors.NewTrainingError(errors.CodeTrainingFailed, "Trainer exploded")
}

func TestRunCycleTrainFailureMarksJobFailed(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.executor = failingExecutor{}
	})
	spec := testSpec()
	ctx := context.Background()

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.Error(t, err)
	assert.Equal(t, OutcomeTrainFailed, outcome)

	jobs, err := h.queue.List(ctx, interfaces.JobFilter{Status: models.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].Error, "Trainer exploded")

	h.sink.Close()
	assert.Contains(t, auditActions(t, h), models.AuditTrainFailed)

	// A failed job is terminal: the next cycle may enqueue again.
	_, enqErr := h.queue.Enqueue(ctx, spec.Task, spec.Network, models.ReasonSchedule, models.TrainingConfig{})
	assert.NoError(t, enqErr)
}

// degradingProvider flips the pipeline signals while serving policy
// metrics, simulating drift that appears during a long training run.
type degradingProvider struct {
	*StaticProvider
	signals *guard.StaticSignalSource
}

func (p *degradingProvider) PolicyMetrics(ctx context.Context, active, candidate *models.ModelVersion) (policy.Metrics, policy.Metrics, int, error) {
	p.signals.Set(interfaces.GuardSignals{
		DriftSeverity:    0.90,
		SampleCount:      1000,
		LiveShare:        1.0,
		SchemaIntact:     true,
		IngestionBacklog: 0,
	})
	return p.StaticProvider.PolicyMetrics(ctx, active, candidate)
}

func TestRunCycleSecondGuardCheckBlocksPromotion(t *testing.T) {
	h := newHarness(t)
	h.orch.provider = &degradingProvider{StaticProvider: h.static, signals: h.signals}
	spec := testSpec()
	ctx := context.Background()

	baseline := seedActive(t, h, spec)
	h.static.SetSample(spec.Task, spec.Network, passingSample())
	h.static.SetEvaluation(spec.Task, spec.Network,
		policy.Metrics{Precision: 0.80, FalsePositiveRate: 0.05, CalibrationError: 0.03, Lift: 2.0},
		policy.Metrics{Precision: 0.83, FalsePositiveRate: 0.05, CalibrationError: 0.03, Lift: 2.1},
		200)

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGuardBlocked, outcome)

	// The candidate was held back, not promoted.
	active, err := h.registry.GetActive(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	assert.Equal(t, baseline.ModelID, active.ModelID)

	h.sink.Close()
	entries, err := h.writer.Recent(ctx, 100, interfaces.AuditFilter{Action: models.AuditPromoteBlocked})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Reason, "drift severity")
}

func TestRunCycleStampsLatestDatasetRef(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	resolver := dataset.NewStaticResolver()
	resolver.Set(spec.Task, spec.Network, dataset.ExportRef{
		DatasetRef:        "ds-2026-08-26",
		FeatureSetVersion: "fs-9",
		RowCount:          120000,
	})
	h.orch.dataset = resolver

	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInitialActive, outcome)

	jobs, err := h.queue.List(ctx, interfaces.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "ds-2026-08-26", jobs[0].TrainingConfig.DatasetRef)
}

func TestSafeRunCycleUpdatesQueueGauges(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	m, err := metrics.NewLifecycleMetrics(&metrics.Config{Enabled: false, Namespace: "cycle"}, nil)
	require.NoError(t, err)
	h.orch.metrics = m

	h.orch.safeRunCycle(ctx, spec, models.TriggerScheduler)

	// The job ran to completion inside the cycle, so both gauges read zero
	// but carry a sample, proving the refresh happened.
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `cycle_queue_depth{status="PENDING"} 0`)
	assert.Contains(t, body, `cycle_queue_depth{status="RUNNING"} 0`)
	assert.Contains(t, body, `cycle_lifecycle_cycles_total{horizon="7d",outcome="initial_active"} 1`)
}

func TestRunCycleSkipsWhenJobAlreadyInFlight(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	_, err := h.queue.Enqueue(ctx, spec.Task, spec.Network, models.ReasonDrift, models.TrainingConfig{})
	require.NoError(t, err)

	// The pending job belongs to another worker; this cycle stands down.
	outcome, err := h.orch.RunCycle(ctx, spec, models.TriggerScheduler)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestCheckHealthTriggersAutoRollback(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	first := seedActive(t, h, spec)
	second := &models.ModelVersion{
		ModelID: "successor",
		Task:    spec.Task,
		Network: spec.Network,
	}
	require.NoError(t, h.registry.Register(ctx, second))
	_, err := h.registry.Promote(ctx, second.ModelID)
	require.NoError(t, err)
	_, err = h.state.AtomicSwitch(ctx, spec.Horizon, second.ModelID, models.SwitchReasonPromotion)
	require.NoError(t, err)

	// Two critical windows are not enough.
	for i := 0; i < 2; i++ {
		_, err = h.state.UpdateHealth(ctx, spec.Horizon, models.HealthCritical)
		require.NoError(t, err)
	}
	h.orch.checkHealth(ctx)
	st, err := h.state.Get(ctx, spec.Horizon)
	require.NoError(t, err)
	assert.Equal(t, second.ModelID, st.ActiveModelID)

	// The third reaches the limit and the watch rolls back.
	_, err = h.state.UpdateHealth(ctx, spec.Horizon, models.HealthCritical)
	require.NoError(t, err)
	h.orch.checkHealth(ctx)

	st, err = h.state.Get(ctx, spec.Horizon)
	require.NoError(t, err)
	assert.Equal(t, first.ModelID, st.ActiveModelID)
	assert.Equal(t, models.SwitchReasonRollback, st.SwitchReason)

	reverted, err := h.registry.Get(ctx, second.ModelID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusArchived, reverted.Status)

	// The restored model is ACTIVE again in the registry, so the next
	// cycle still finds an incumbent to evaluate against.
	restored, err := h.registry.Get(ctx, first.ModelID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusActive, restored.Status)
	active, err := h.registry.GetActive(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	assert.Equal(t, first.ModelID, active.ModelID)

	h.sink.Close()
	entries, err := h.writer.Recent(ctx, 100, interfaces.AuditFilter{Action: models.AuditRollback})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TriggerAuto, entries[0].TriggeredBy)
}

func TestManualEnqueueBlockedByGuard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.switches.SetKillSwitch(ctx, true))

	_, err := h.orch.ManualEnqueue(ctx, models.Horizon7d, models.TaskMarketClassifier, "ethereum", models.TrainingConfig{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeGuardBlocked))

	jobs, listErr := h.queue.List(ctx, interfaces.JobFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, jobs)
}

func TestManualPromoteRequiresShadow(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	active := seedActive(t, h, spec)
	err := h.orch.ManualPromote(ctx, spec.Horizon, active.ModelID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeModelNotShadow))
}

func TestManualPromoteSwitchesState(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	seedActive(t, h, spec)
	candidate := &models.ModelVersion{
		ModelID: "hand-picked",
		Task:    spec.Task,
		Network: spec.Network,
	}
	require.NoError(t, h.registry.Register(ctx, candidate))

	require.NoError(t, h.orch.ManualPromote(ctx, spec.Horizon, candidate.ModelID))

	st, err := h.state.Get(ctx, spec.Horizon)
	require.NoError(t, err)
	assert.Equal(t, candidate.ModelID, st.ActiveModelID)

	h.sink.Close()
	entries, err := h.writer.Recent(ctx, 100, interfaces.AuditFilter{Action: models.AuditPromoteSucceeded})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TriggerManual, entries[0].TriggeredBy)
}

func TestSetKillSwitchAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.orch.SetKillSwitch(ctx, true, "Incident response"))

	enabled, err := h.switches.KillSwitchEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	h.sink.Close()
	entries, err := h.writer.Recent(ctx, 100, interfaces.AuditFilter{Action: models.AuditKillSwitchChanged})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Reason, "Incident response")
}

// switchRejectingStore fails every atomic switch so the registry
// compensation path can be observed.
type switchRejectingStore struct {
	*state.MemoryStore
}

func (s *switchRejectingStore) AtomicSwitch(ctx context.Context, horizon models.Horizon, newModelID string, reason models.SwitchReason) (*models.ActiveModelState, error) {
	return nil, errors.NewStateError(errors.CodeStateConflict, "Simulated switch failure")
}

func TestPromoteAsUnitCompensatesOnSwitchFailure(t *testing.T) {
	h := newHarness(t)
	spec := testSpec()
	ctx := context.Background()

	baseline := seedActive(t, h, spec)
	candidate := &models.ModelVersion{
		ModelID: "doomed",
		Task:    spec.Task,
		Network: spec.Network,
	}
	require.NoError(t, h.registry.Register(ctx, candidate))

	h.orch.state = &switchRejectingStore{MemoryStore: h.state}
	err := h.orch.promoteAsUnit(ctx, spec.Horizon, candidate, models.TriggerManual, "test")
	require.Error(t, err)

	// Registry rolled back: the candidate is shadow again and the old
	// active model still serves.
	got, err := h.registry.Get(ctx, candidate.ModelID)
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusShadow, got.Status)

	active, err := h.registry.GetActive(ctx, spec.Task, spec.Network)
	require.NoError(t, err)
	assert.Equal(t, baseline.ModelID, active.ModelID)
}

func TestRunAndStop(t *testing.T) {
	h := newHarness(t)

	h.orch.config.Loops = []LoopSpec{{
		Horizon:  models.Horizon7d,
		Task:     models.TaskMarketClassifier,
		Network:  "ethereum",
		Interval: time.Hour,
	}}
	h.orch.config.HealthCheckInterval = time.Hour

	done := make(chan struct{})
	go func() {
		h.orch.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	h.orch.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}
