package models

import (
	"time"
)

// Horizon is the forward-looking window a classifier predicts returns for.
type Horizon string

const (
	Horizon7d  Horizon = "7d"
	Horizon30d Horizon = "30d"
)

// Task identifies which classifier family a model belongs to.
type Task string

const (
	TaskMarketClassifier Task = "market_classifier"
	TaskActorClassifier  Task = "actor_classifier"
)

// RetrainReason explains why a retrain job was created.
type RetrainReason string

const (
	ReasonDrift      RetrainReason = "DRIFT"
	ReasonSchedule   RetrainReason = "SCHEDULE"
	ReasonManual     RetrainReason = "MANUAL"
	ReasonAutoPolicy RetrainReason = "AUTO_POLICY"
)

// JobStatus is the lifecycle state of a retrain job.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// IsTerminal reports whether the job can no longer transition.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// TrainingConfig carries the hyperparameters and dataset reference handed
// to the training executor. The governance layer treats it as opaque
// beyond the dataset reference.
type TrainingConfig struct {
	DatasetRef      string                 `json:"dataset_ref"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
}

// RetrainJob is one unit of training work. For a given (task, network)
// pair at most one job may be PENDING or RUNNING at any instant; terminal
// jobs are retained for audit and never deleted.
type RetrainJob struct {
	ID             string         `json:"id"`
	Task           Task           `json:"task"`
	Network        string         `json:"network"`
	Reason         RetrainReason  `json:"reason"`
	Status         JobStatus      `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	TrainingConfig TrainingConfig `json:"training_config"`
}

// ModelStatus is the registry lifecycle status of a trained model version.
type ModelStatus string

const (
	ModelStatusShadow   ModelStatus = "SHADOW"
	ModelStatusActive   ModelStatus = "ACTIVE"
	ModelStatusArchived ModelStatus = "ARCHIVED"
)

// ClassifierMetrics is the immutable metrics snapshot recorded when a
// model version is registered.
type ClassifierMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
}

// FeatureMeta describes the feature set a model was trained against.
type FeatureMeta struct {
	FeatureSetVersion string   `json:"feature_set_version"`
	Features          []string `json:"features,omitempty"`
	RowCount          int64    `json:"row_count"`
}

// ModelVersion is a single trained artifact in the registry. Everything
// except Status is immutable after registration.
type ModelVersion struct {
	ModelID     string            `json:"model_id"`
	Task        Task              `json:"task"`
	Network     string            `json:"network"`
	Version     int               `json:"version"`
	Status      ModelStatus       `json:"status"`
	Metrics     ClassifierMetrics `json:"metrics"`
	TrainedAt   time.Time         `json:"trained_at"`
	ArtifactRef string            `json:"artifact_ref"`
	FeatureMeta FeatureMeta       `json:"feature_meta"`
}

// VerdictStatus is the outcome of a shadow-vs-active comparison.
type VerdictStatus string

const (
	VerdictPass         VerdictStatus = "PASS"
	VerdictFail         VerdictStatus = "FAIL"
	VerdictInconclusive VerdictStatus = "INCONCLUSIVE"
)

// Verdict is the rendered decision of the shadow comparator, tagged with
// the rules version that produced it so historical verdicts stay
// interpretable after rule changes.
type Verdict struct {
	Status       VerdictStatus `json:"status"`
	Reason       string        `json:"reason"`
	RulesVersion string        `json:"rules_version"`
}

// SampleWindow describes the held-out rows both models were scored on.
type SampleWindow struct {
	Rows   int       `json:"rows"`
	FromTs time.Time `json:"from_ts"`
	ToTs   time.Time `json:"to_ts"`
}

// MetricsDelta holds shadow minus active per metric, rounded to four
// decimal places.
type MetricsDelta struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
}

// ShadowComparison is one immutable comparison record; many may exist per
// model pair over time.
type ShadowComparison struct {
	ID                 string            `json:"id"`
	Task               Task              `json:"task"`
	Network            string            `json:"network"`
	WindowLabel        string            `json:"window_label"`
	ActiveModelVersion string            `json:"active_model_version"`
	ShadowModelVersion string            `json:"shadow_model_version"`
	Sample             SampleWindow      `json:"sample"`
	MetricsActive      ClassifierMetrics `json:"metrics_active"`
	MetricsShadow      ClassifierMetrics `json:"metrics_shadow"`
	Delta              MetricsDelta      `json:"delta"`
	Verdict            Verdict           `json:"verdict"`
	ComparedAt         time.Time         `json:"compared_at"`
}

// SwitchReason records why the active model changed.
type SwitchReason string

const (
	SwitchReasonPromotion SwitchReason = "PROMOTION"
	SwitchReasonRollback  SwitchReason = "ROLLBACK"
	SwitchReasonInitial   SwitchReason = "INITIAL"
)

// HealthStatus is the live-quality assessment of the serving model.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthCritical HealthStatus = "CRITICAL"
)

// ActiveModelState is the single source of truth for which model version
// serves traffic for a horizon. PreviousModelID always holds the value
// needed to roll back one step. StateVersion backs optimistic concurrency
// on writes.
type ActiveModelState struct {
	Horizon                    Horizon      `json:"horizon"`
	ActiveModelID              string       `json:"active_model_id"`
	PreviousModelID            string       `json:"previous_model_id,omitempty"`
	SwitchedAt                 time.Time    `json:"switched_at"`
	SwitchReason               SwitchReason `json:"switch_reason"`
	HealthStatus               HealthStatus `json:"health_status"`
	ConsecutiveCriticalWindows int          `json:"consecutive_critical_windows"`
	StateVersion               int64        `json:"state_version"`
}

// AuditAction is the closed set of auditable lifecycle actions.
type AuditAction string

const (
	AuditJobEnqueued       AuditAction = "JOB_ENQUEUED"
	AuditJobClaimed        AuditAction = "JOB_CLAIMED"
	AuditJobCompleted      AuditAction = "JOB_COMPLETED"
	AuditJobFailed         AuditAction = "JOB_FAILED"
	AuditTrainStarted      AuditAction = "TRAIN_STARTED"
	AuditTrainFinished     AuditAction = "TRAIN_FINISHED"
	AuditTrainFailed       AuditAction = "TRAIN_FAILED"
	AuditEvaluated         AuditAction = "EVALUATED"
	AuditPromoteSucceeded  AuditAction = "PROMOTE_SUCCEEDED"
	AuditPromoteBlocked    AuditAction = "PROMOTE_BLOCKED"
	AuditRollback          AuditAction = "ROLLBACK"
	AuditGuardBlocked      AuditAction = "GUARD_BLOCKED"
	AuditHealthCheck       AuditAction = "HEALTH_CHECK"
	AuditKillSwitchChanged AuditAction = "KILL_SWITCH_CHANGED"
)

// TriggeredBy identifies who or what initiated an audited action.
type TriggeredBy string

const (
	TriggerScheduler TriggeredBy = "SCHEDULER"
	TriggerManual    TriggeredBy = "MANUAL"
	TriggerAuto      TriggeredBy = "AUTO"
	TriggerSystem    TriggeredBy = "SYSTEM"
)

// AuditLogEntry is one append-only ledger record. Entries are never
// mutated or deleted; the ledger is the sole mechanism for reconstructing
// what happened and why after the fact.
type AuditLogEntry struct {
	AuditID          string             `json:"audit_id"`
	Timestamp        time.Time          `json:"timestamp"`
	Horizon          Horizon            `json:"horizon,omitempty"`
	ModelVersionID   string             `json:"model_version_id,omitempty"`
	DatasetVersionID string             `json:"dataset_version_id,omitempty"`
	Action           AuditAction        `json:"action"`
	Reason           string             `json:"reason"`
	MetricsSnapshot  *ClassifierMetrics `json:"metrics_snapshot,omitempty"`
	Decision         string             `json:"evaluation_decision,omitempty"`
	HealthStatus     HealthStatus       `json:"health_status,omitempty"`
	TriggeredBy      TriggeredBy        `json:"triggered_by"`
}
