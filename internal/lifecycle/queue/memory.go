// Package queue implements the durable retrain work list. The queue is
// the single point of entry for training work and enforces the
// single-in-flight invariant: for a given (task, network) pair at most
// one job is PENDING or RUNNING at any instant.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// MemoryQueue is the in-process Queue used by tests and single-node
// development. One mutex guards all transitions, which gives the same
// claim atomicity the Postgres implementation gets from its conditional
// UPDATE.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]*models.RetrainJob
	audit  interfaces.AuditSink
	logger *logrus.Logger
	now    func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue. The audit sink may be
// nil, in which case transitions are not audited.
func NewMemoryQueue(audit interfaces.AuditSink, logger *logrus.Logger) *MemoryQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryQueue{
		jobs:   make(map[string]*models.RetrainJob),
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue adds a PENDING job, rejecting with DUPLICATE_IN_FLIGHT when a
// PENDING or RUNNING job already exists for the same (task, network).
func (q *MemoryQueue) Enqueue(ctx context.Context, task models.Task, network string, reason models.RetrainReason, cfg models.TrainingConfig) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		if j.Task == task && j.Network == network && !j.Status.IsTerminal() {
			return "", errors.NewQueueError(errors.CodeDuplicateInFlight, "Retrain job already in flight for this task and network").
				WithContext("task", string(task)).
				WithContext("network", network).
				WithContext("existingJobID", j.ID)
		}
	}

	job := &models.RetrainJob{
		ID:             uuid.New().String(),
		Task:           task,
		Network:        network,
		Reason:         reason,
		Status:         models.JobStatusPending,
		CreatedAt:      q.now().UTC(),
		TrainingConfig: cfg,
	}
	q.jobs[job.ID] = job

	q.logger.WithFields(logrus.Fields{
		"jobID":   job.ID,
		"task":    task,
		"network": network,
		"reason":  reason,
	}).Info("Retrain job enqueued")

	q.auditTransition(job, models.AuditJobEnqueued, "Retrain job enqueued: "+string(reason))

	return job.ID, nil
}

// ClaimNext atomically flips the oldest PENDING job to RUNNING and
// returns it. Returns (nil, nil) when nothing is claimable.
func (q *MemoryQueue) ClaimNext(ctx context.Context) (*models.RetrainJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest *models.RetrainJob
	for _, j := range q.jobs {
		if j.Status != models.JobStatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}

	started := q.now().UTC()
	oldest.Status = models.JobStatusRunning
	oldest.StartedAt = &started

	q.auditTransition(oldest, models.AuditJobClaimed, "Retrain job claimed")

	cp := *oldest
	return &cp, nil
}

// Complete transitions a RUNNING job to DONE. Calling it on an already
// terminal job is a no-op.
func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	return q.finish(jobID, models.JobStatusDone, "")
}

// Fail transitions a job to FAILED with the given error message. Calling
// it on an already terminal job is a no-op.
func (q *MemoryQueue) Fail(ctx context.Context, jobID, errMsg string) error {
	return q.finish(jobID, models.JobStatusFailed, errMsg)
}

func (q *MemoryQueue) finish(jobID string, terminal models.JobStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return errors.NewQueueError(errors.CodeJobNotFound, "Retrain job not found").
			WithContext("jobID", jobID)
	}
	if job.Status.IsTerminal() {
		// Idempotent: re-finishing a terminal job is not an error.
		return nil
	}

	finished := q.now().UTC()
	job.Status = terminal
	job.FinishedAt = &finished
	job.Error = errMsg

	if terminal == models.JobStatusDone {
		q.auditTransition(job, models.AuditJobCompleted, "Retrain job completed")
	} else {
		q.auditTransition(job, models.AuditJobFailed, "Retrain job failed: "+errMsg)
	}

	return nil
}

// Get returns a copy of the job.
func (q *MemoryQueue) Get(ctx context.Context, jobID string) (*models.RetrainJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, errors.NewQueueError(errors.CodeJobNotFound, "Retrain job not found").
			WithContext("jobID", jobID)
	}
	cp := *job
	return &cp, nil
}

// List returns matching jobs, newest first.
func (q *MemoryQueue) List(ctx context.Context, filter interfaces.JobFilter) ([]*models.RetrainJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*models.RetrainJob
	for _, j := range q.jobs {
		if filter.Task != "" && j.Task != filter.Task {
			continue
		}
		if filter.Network != "" && j.Network != filter.Network {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (q *MemoryQueue) auditTransition(job *models.RetrainJob, action models.AuditAction, reason string) {
	if q.audit == nil {
		return
	}
	q.audit.Append(models.AuditLogEntry{
		Action:           action,
		Reason:           reason,
		ModelVersionID:   "",
		DatasetVersionID: job.TrainingConfig.DatasetRef,
		TriggeredBy:      triggerFor(job.Reason),
	})
}

func triggerFor(reason models.RetrainReason) models.TriggeredBy {
	switch reason {
	case models.ReasonManual:
		return models.TriggerManual
	case models.ReasonSchedule:
		return models.TriggerScheduler
	case models.ReasonDrift, models.ReasonAutoPolicy:
		return models.TriggerAuto
	default:
		return models.TriggerSystem
	}
}
