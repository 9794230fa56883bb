package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/internal/dataset"
	"github.com/alphaintel/modelgov/internal/lifecycle/guard"
	"github.com/alphaintel/modelgov/internal/lifecycle/policy"
	"github.com/alphaintel/modelgov/internal/lifecycle/shadow"
	"github.com/alphaintel/modelgov/internal/observability/metrics"
	"github.com/alphaintel/modelgov/internal/training"
	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// LoopSpec is one scheduled retrain loop.
type LoopSpec struct {
	Horizon  models.Horizon `json:"horizon"`
	Task     models.Task    `json:"task"`
	Network  string         `json:"network"`
	Interval time.Duration  `json:"interval"`
}

// Config holds orchestrator settings.
type Config struct {
	Loops               []LoopSpec    `json:"loops"`
	CycleInterval       time.Duration `json:"cycle_interval"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	Policy              policy.Policy `json:"policy"`
}

// DefaultConfig returns a config covering both classifier tasks on every
// default network for both horizons.
func DefaultConfig() Config {
	cfg := Config{
		CycleInterval:       constants.DefaultCycleInterval,
		HealthCheckInterval: constants.DefaultHealthCheckInterval,
		Policy:              policy.Default(),
	}
	for _, horizon := range []models.Horizon{models.Horizon7d, models.Horizon30d} {
		for _, task := range []models.Task{models.TaskMarketClassifier, models.TaskActorClassifier} {
			for _, network := range constants.DefaultNetworks {
				cfg.Loops = append(cfg.Loops, LoopSpec{
					Horizon: horizon,
					Task:    task,
					Network: network,
				})
			}
		}
	}
	return cfg
}

// Orchestrator drives the retrain, shadow-evaluate, promote cycle and
// the health watch for every configured loop.
type Orchestrator struct {
	config     Config
	queue      interfaces.Queue
	registry   interfaces.Registry
	state      interfaces.StateStore
	guard      *guard.Guard
	comparator *shadow.Comparator
	executor   training.Executor
	dataset    dataset.Resolver
	provider   EvaluationProvider
	switches   interfaces.SwitchStore
	audit      interfaces.AuditSink
	metrics    *metrics.LifecycleMetrics
	logger     *logrus.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// Deps bundles the collaborators the orchestrator runs against.
type Deps struct {
	Queue      interfaces.Queue
	Registry   interfaces.Registry
	State      interfaces.StateStore
	Guard      *guard.Guard
	Comparator *shadow.Comparator
	Executor   training.Executor
	Dataset    dataset.Resolver
	Provider   EvaluationProvider
	Switches   interfaces.SwitchStore
	Audit      interfaces.AuditSink
	Metrics    *metrics.LifecycleMetrics
}

// New creates an orchestrator.
func New(config Config, deps Deps, logger *logrus.Logger) *Orchestrator {
	if config.CycleInterval <= 0 {
		config.CycleInterval = constants.DefaultCycleInterval
	}
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = constants.DefaultHealthCheckInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		config:     config,
		queue:      deps.Queue,
		registry:   deps.Registry,
		state:      deps.State,
		guard:      deps.Guard,
		comparator: deps.Comparator,
		executor:   deps.Executor,
		dataset:    deps.Dataset,
		provider:   deps.Provider,
		switches:   deps.Switches,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Run starts one goroutine per configured loop plus the health watch and
// blocks until the context is cancelled or Stop is called.
func (o *Orchestrator) Run(ctx context.Context) {
	for _, loop := range o.config.Loops {
		spec := loop
		if spec.Interval <= 0 {
			spec.Interval = o.config.CycleInterval
		}
		o.wg.Add(1)
		go o.runLoop(ctx, spec)
	}

	o.wg.Add(1)
	go o.runHealthWatch(ctx)

	o.wg.Wait()
}

// Stop signals all loops to exit after their current cycle.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
}

func (o *Orchestrator) runLoop(ctx context.Context, spec LoopSpec) {
	defer o.wg.Done()

	log := o.logger.WithFields(logrus.Fields{
		"horizon": spec.Horizon,
		"task":    spec.Task,
		"network": spec.Network,
	})
	log.WithField("interval", spec.Interval).Info("Starting lifecycle loop")

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.safeRunCycle(ctx, spec, models.TriggerScheduler)
		}
	}
}

// safeRunCycle recovers panics so one bad cycle never kills the loop.
func (o *Orchestrator) safeRunCycle(ctx context.Context, spec LoopSpec, trigger models.TriggeredBy) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(logrus.Fields{
				"horizon": spec.Horizon,
				"task":    spec.Task,
				"panic":   r,
			}).Error("Recovered panic in lifecycle cycle")
		}
	}()

	start := time.Now()
	outcome, err := o.RunCycle(ctx, spec, trigger)
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"horizon": spec.Horizon,
			"task":    spec.Task,
			"network": spec.Network,
		}).Error("Lifecycle cycle failed")
	}
	if o.metrics != nil {
		o.metrics.RecordCycle(spec.Horizon, outcome, time.Since(start))
		o.updateQueueDepth(ctx)
	}
}

// updateQueueDepth refreshes the per-status queue gauges after a cycle.
func (o *Orchestrator) updateQueueDepth(ctx context.Context) {
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusRunning} {
		jobs, err := o.queue.List(ctx, interfaces.JobFilter{Status: status})
		if err != nil {
			o.logger.WithError(err).WithField("status", status).Warn("Failed to read queue depth")
			continue
		}
		o.metrics.SetQueueDepth(status, len(jobs))
	}
}

// Cycle outcomes reported to metrics.
const (
	OutcomeGuardBlocked  = "guard_blocked"
	OutcomePromoted      = "promoted"
	OutcomeHeld          = "held"
	OutcomeRejected      = "rejected"
	OutcomeTrainFailed   = "train_failed"
	OutcomeInitialActive = "initial_active"
	OutcomeError         = "error"
	OutcomeSkipped       = "skipped"
)

// RunCycle executes one full retrain cycle for the loop: guard, enqueue
// and claim, train, register shadow, compare, evaluate, and promote when
// the decision and a second guard check both allow it. Errors after the
// claim mark the job FAILED; the loop always survives to the next tick.
func (o *Orchestrator) RunCycle(ctx context.Context, spec LoopSpec, trigger models.TriggeredBy) (string, error) {
	log := o.logger.WithFields(logrus.Fields{
		"horizon": spec.Horizon,
		"task":    spec.Task,
		"network": spec.Network,
	})

	// Step 1: guard gate. A block is an expected outcome, not an error.
	res, err := o.guard.Check(ctx, spec.Horizon)
	if err != nil {
		return OutcomeError, err
	}
	if !res.Allowed {
		o.auditGuardBlocked(spec, res.Reasons, trigger)
		log.WithField("reasons", res.Reasons).Info("Cycle blocked by guard")
		return OutcomeGuardBlocked, nil
	}

	// Step 2: enqueue and claim. A duplicate in-flight job means another
	// worker owns this pair right now; stand down until the next tick.
	reason := models.ReasonSchedule
	if trigger == models.TriggerManual {
		reason = models.ReasonManual
	}
	cfg := models.TrainingConfig{}
	if o.dataset != nil {
		// A missing export is not fatal: the trainer falls back to its
		// own latest snapshot when the ref is empty.
		if ref, derr := o.dataset.LatestRef(ctx, spec.Task, spec.Network); derr == nil {
			cfg.DatasetRef = ref.DatasetRef
		} else {
			log.WithError(derr).Warn("Failed to resolve latest dataset export")
		}
	}
	jobID, err := o.queue.Enqueue(ctx, spec.Task, spec.Network, reason, cfg)
	if err != nil {
		if errors.IsCode(err, errors.CodeDuplicateInFlight) {
			log.Info("Retrain already in flight, skipping cycle")
			return OutcomeSkipped, nil
		}
		return OutcomeError, err
	}
	log = log.WithField("job_id", jobID)

	if err := o.guard.RecordAttempt(ctx, spec.Horizon); err != nil {
		log.WithError(err).Warn("Failed to stamp guard cooldown")
	}

	job, err := o.queue.ClaimNext(ctx)
	if err != nil {
		return OutcomeError, err
	}
	if job == nil {
		// Another claimer won the job we just enqueued.
		return OutcomeSkipped, nil
	}

	outcome, err := o.runClaimedJob(ctx, spec, job, trigger)
	if err != nil {
		if ferr := o.queue.Fail(ctx, job.ID, err.Error()); ferr != nil {
			log.WithError(ferr).Error("Failed to mark job FAILED")
		}
		if o.metrics != nil {
			o.metrics.RecordJob(job.Task, job.Network, models.JobStatusFailed)
		}
		return outcome, err
	}

	if cerr := o.queue.Complete(ctx, job.ID); cerr != nil {
		log.WithError(cerr).Error("Failed to mark job DONE")
	}
	if o.metrics != nil {
		o.metrics.RecordJob(job.Task, job.Network, models.JobStatusDone)
	}
	return outcome, nil
}

// runClaimedJob covers steps 3 through 7. The returned error marks the
// job FAILED upstream.
func (o *Orchestrator) runClaimedJob(ctx context.Context, spec LoopSpec, job *models.RetrainJob, trigger models.TriggeredBy) (string, error) {
	log := o.logger.WithFields(logrus.Fields{
		"horizon": spec.Horizon,
		"job_id":  job.ID,
	})

	// Step 3: train with a bounded timeout and register the result.
	o.audit.Append(models.AuditLogEntry{
		Horizon:          spec.Horizon,
		DatasetVersionID: job.TrainingConfig.DatasetRef,
		Action:           models.AuditTrainStarted,
		Reason:           fmt.Sprintf("Training %s/%s", job.Task, job.Network),
		TriggeredBy:      trigger,
	})

	trainStart := time.Now()
	result, err := o.executor.Train(ctx, job)
	if err != nil {
		o.audit.Append(models.AuditLogEntry{
			Horizon:          spec.Horizon,
			DatasetVersionID: job.TrainingConfig.DatasetRef,
			Action:           models.AuditTrainFailed,
			Reason:           err.Error(),
			TriggeredBy:      trigger,
		})
		return OutcomeTrainFailed, err
	}
	if o.metrics != nil {
		o.metrics.RecordTraining(job.Task, job.Network, time.Since(trainStart))
	}

	candidate := &models.ModelVersion{
		ModelID:     uuid.New().String(),
		Task:        job.Task,
		Network:     job.Network,
		Metrics:     result.Metrics,
		TrainedAt:   time.Now().UTC(),
		ArtifactRef: result.ArtifactRef,
		FeatureMeta: result.FeatureMeta,
	}
	if err := o.registry.Register(ctx, candidate); err != nil {
		return OutcomeError, err
	}

	o.audit.Append(models.AuditLogEntry{
		Horizon:          spec.Horizon,
		ModelVersionID:   candidate.ModelID,
		DatasetVersionID: job.TrainingConfig.DatasetRef,
		Action:           models.AuditTrainFinished,
		Reason:           fmt.Sprintf("Registered shadow model v%d", candidate.Version),
		MetricsSnapshot:  &result.Metrics,
		TriggeredBy:      trigger,
	})

	// No active model yet: the first trained model goes straight to
	// serving, there is nothing to compare against.
	active, err := o.registry.GetActive(ctx, job.Task, job.Network)
	if err != nil && !errors.IsCode(err, errors.CodeModelNotFound) {
		return OutcomeError, err
	}
	if active == nil {
		if err := o.promoteAsUnit(ctx, spec.Horizon, candidate, trigger, "First trained model"); err != nil {
			return OutcomeError, err
		}
		return OutcomeInitialActive, nil
	}

	// Step 4: shadow comparison on a held-out window.
	sample, err := o.provider.HeldOutSample(ctx, job.Task, job.Network)
	if err != nil {
		return OutcomeError, err
	}
	comparison, err := o.comparator.Compare(ctx, active, candidate, sample)
	if err != nil {
		return OutcomeError, err
	}
	if o.metrics != nil {
		o.metrics.RecordComparison(job.Task, comparison.Verdict.Status)
	}

	if comparison.Verdict.Status == models.VerdictFail {
		o.audit.Append(models.AuditLogEntry{
			Horizon:         spec.Horizon,
			ModelVersionID:  candidate.ModelID,
			Action:          models.AuditEvaluated,
			Reason:          comparison.Verdict.Reason,
			MetricsSnapshot: &comparison.MetricsShadow,
			Decision:        string(policy.OutcomeReject),
			TriggeredBy:     trigger,
		})
		log.WithField("reason", comparison.Verdict.Reason).Info("Shadow comparison failed, candidate stays shadow")
		return OutcomeRejected, nil
	}
	if comparison.Verdict.Status == models.VerdictInconclusive {
		o.audit.Append(models.AuditLogEntry{
			Horizon:         spec.Horizon,
			ModelVersionID:  candidate.ModelID,
			Action:          models.AuditEvaluated,
			Reason:          comparison.Verdict.Reason,
			MetricsSnapshot: &comparison.MetricsShadow,
			Decision:        string(policy.OutcomeHold),
			TriggeredBy:     trigger,
		})
		return OutcomeHeld, nil
	}

	// Step 5: evaluation policy over the live-quality metrics.
	baseline, candMetrics, sampleCount, err := o.provider.PolicyMetrics(ctx, active, candidate)
	if err != nil {
		return OutcomeError, err
	}
	decision := policy.Apply(candMetrics, baseline, o.config.Policy, sampleCount)

	o.audit.Append(models.AuditLogEntry{
		Horizon:         spec.Horizon,
		ModelVersionID:  candidate.ModelID,
		Action:          models.AuditEvaluated,
		Reason:          strings.Join(decision.Reasons, "; "),
		MetricsSnapshot: &candidate.Metrics,
		Decision:        string(decision.Outcome),
		TriggeredBy:     trigger,
	})

	// Step 7: REJECT and HOLD both leave the candidate as shadow.
	if decision.Outcome != policy.OutcomePromote {
		log.WithFields(logrus.Fields{
			"decision": decision.Outcome,
			"reasons":  decision.Reasons,
		}).Info("Candidate held as shadow")
		if decision.Outcome == policy.OutcomeReject {
			return OutcomeRejected, nil
		}
		return OutcomeHeld, nil
	}

	// Step 6: re-check the guard. Pipeline state may have drifted during
	// a long training run.
	res, err := o.guard.CheckPromotion(ctx, spec.Horizon)
	if err != nil {
		return OutcomeError, err
	}
	if !res.Allowed {
		o.audit.Append(models.AuditLogEntry{
			Horizon:        spec.Horizon,
			ModelVersionID: candidate.ModelID,
			Action:         models.AuditPromoteBlocked,
			Reason:         strings.Join(res.Reasons, "; "),
			TriggeredBy:    trigger,
		})
		if o.metrics != nil && len(res.Reasons) > 0 {
			o.metrics.RecordGuardBlock(spec.Horizon, res.Reasons[0])
		}
		log.WithField("reasons", res.Reasons).Warn("Promotion blocked by guard re-check")
		return OutcomeGuardBlocked, nil
	}

	if err := o.promoteAsUnit(ctx, spec.Horizon, candidate, trigger, strings.Join(decision.Reasons, "; ")); err != nil {
		return OutcomeError, err
	}
	return OutcomePromoted, nil
}

// promoteAsUnit performs registry promote plus the active-state atomic
// switch as one logical unit. The state switch is the commit point: when
// it fails the registry promotion is compensated back so registry and
// state never disagree about which model serves.
func (o *Orchestrator) promoteAsUnit(ctx context.Context, horizon models.Horizon, candidate *models.ModelVersion, trigger models.TriggeredBy, reason string) error {
	demoted, err := o.registry.Promote(ctx, candidate.ModelID)
	if err != nil {
		return err
	}

	if _, err := o.state.AtomicSwitch(ctx, horizon, candidate.ModelID, models.SwitchReasonPromotion); err != nil {
		if uerr := o.registry.UndoPromote(ctx, candidate.ModelID, demoted); uerr != nil {
			o.logger.WithError(uerr).WithField("model_id", candidate.ModelID).Error("Failed to compensate registry promotion")
		}
		return err
	}

	o.audit.Append(models.AuditLogEntry{
		Horizon:         horizon,
		ModelVersionID:  candidate.ModelID,
		Action:          models.AuditPromoteSucceeded,
		Reason:          reason,
		MetricsSnapshot: &candidate.Metrics,
		TriggeredBy:     trigger,
	})
	if o.metrics != nil {
		o.metrics.RecordPromotion(horizon, trigger)
	}
	o.logger.WithFields(logrus.Fields{
		"horizon":  horizon,
		"model_id": candidate.ModelID,
		"demoted":  demoted,
	}).Info("Model promoted")
	return nil
}

func (o *Orchestrator) auditGuardBlocked(spec LoopSpec, reasons []string, trigger models.TriggeredBy) {
	o.audit.Append(models.AuditLogEntry{
		Horizon:     spec.Horizon,
		Action:      models.AuditGuardBlocked,
		Reason:      strings.Join(reasons, "; "),
		TriggeredBy: trigger,
	})
	if o.metrics != nil && len(reasons) > 0 {
		o.metrics.RecordGuardBlock(spec.Horizon, reasons[0])
	}
}

// runHealthWatch periodically inspects active-state health and triggers
// an automatic rollback once the critical-window limit is reached.
func (o *Orchestrator) runHealthWatch(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.checkHealth(ctx)
		}
	}
}

func (o *Orchestrator) checkHealth(ctx context.Context) {
	states, err := o.state.GetAll(ctx)
	if err != nil {
		o.logger.WithError(err).Error("Health watch failed to read state")
		return
	}

	for _, st := range states {
		if o.metrics != nil {
			o.metrics.SetModelHealth(st.Horizon, st.HealthStatus)
		}
		o.audit.Append(models.AuditLogEntry{
			Horizon:        st.Horizon,
			ModelVersionID: st.ActiveModelID,
			Action:         models.AuditHealthCheck,
			Reason:         fmt.Sprintf("Health %s, %d consecutive critical windows", st.HealthStatus, st.ConsecutiveCriticalWindows),
			HealthStatus:   st.HealthStatus,
			TriggeredBy:    models.TriggerSystem,
		})

		if !o.guard.ShouldAutoRollback(st) {
			continue
		}

		if err := o.rollback(ctx, st.Horizon, models.TriggerAuto,
			fmt.Sprintf("Automatic rollback after %d consecutive critical windows", st.ConsecutiveCriticalWindows)); err != nil {
			o.logger.WithError(err).WithField("horizon", st.Horizon).Error("Automatic rollback failed")
		}
	}
}

// rollback reverts the horizon one step as one logical unit, mirroring
// promoteAsUnit: the registry reinstates the previous model and archives
// the reverted one first, then the state switch commits. When the switch
// fails the registry change is compensated back so registry and state
// never disagree about which model serves.
func (o *Orchestrator) rollback(ctx context.Context, horizon models.Horizon, trigger models.TriggeredBy, reason string) error {
	before, err := o.state.Get(ctx, horizon)
	if err != nil {
		return err
	}
	if before.PreviousModelID == "" {
		return errors.NewStateError(errors.CodeNothingToRoll, "No previous model to roll back to").
			WithContext("horizon", string(horizon))
	}

	if err := o.registry.Reinstate(ctx, before.PreviousModelID, before.ActiveModelID); err != nil {
		return err
	}

	st, err := o.state.Rollback(ctx, horizon)
	if err != nil {
		if rerr := o.registry.Reinstate(ctx, before.ActiveModelID, before.PreviousModelID); rerr != nil {
			o.logger.WithError(rerr).WithField("model_id", before.ActiveModelID).Error("Failed to compensate registry rollback")
		}
		return err
	}

	o.audit.Append(models.AuditLogEntry{
		Horizon:        horizon,
		ModelVersionID: st.ActiveModelID,
		Action:         models.AuditRollback,
		Reason:         reason,
		TriggeredBy:    trigger,
	})
	if o.metrics != nil {
		o.metrics.RecordRollback(horizon, trigger)
	}
	o.logger.WithFields(logrus.Fields{
		"horizon":  horizon,
		"active":   st.ActiveModelID,
		"reverted": before.ActiveModelID,
	}).Warn("Rolled back active model")
	return nil
}
