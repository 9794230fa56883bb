package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/alphaintel/modelgov/pkg/models"
)

// Queue is the durable retrain work list. Implementations must guarantee
// at most one PENDING or RUNNING job per (task, network) pair and an
// atomic conditional claim safe under concurrent callers.
type Queue interface {
	Enqueue(ctx context.Context, task models.Task, network string, reason models.RetrainReason, cfg models.TrainingConfig) (string, error)
	ClaimNext(ctx context.Context) (*models.RetrainJob, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, errMsg string) error
	Get(ctx context.Context, jobID string) (*models.RetrainJob, error)
	List(ctx context.Context, filter JobFilter) ([]*models.RetrainJob, error)
}

// JobFilter narrows queue listings.
type JobFilter struct {
	Task    models.Task
	Network string
	Status  models.JobStatus
	Limit   int
}

// Registry is the versioned catalogue of trained model artifacts.
type Registry interface {
	Register(ctx context.Context, mv *models.ModelVersion) error
	Promote(ctx context.Context, modelID string) (demoted string, err error)
	Archive(ctx context.Context, modelID string) error
	Reinstate(ctx context.Context, restoreID, archiveID string) error
	UndoPromote(ctx context.Context, modelID, priorActiveID string) error
	Get(ctx context.Context, modelID string) (*models.ModelVersion, error)
	GetActive(ctx context.Context, task models.Task, network string) (*models.ModelVersion, error)
	GetShadowCandidates(ctx context.Context, task models.Task, network string) ([]*models.ModelVersion, error)
}

// StateStore holds the per-horizon active-model record. AtomicSwitch and
// UpdateHealth are the only mutation paths; reads must never observe a
// half-applied switch.
type StateStore interface {
	Get(ctx context.Context, horizon models.Horizon) (*models.ActiveModelState, error)
	GetAll(ctx context.Context) ([]*models.ActiveModelState, error)
	AtomicSwitch(ctx context.Context, horizon models.Horizon, newModelID string, reason models.SwitchReason) (*models.ActiveModelState, error)
	UpdateHealth(ctx context.Context, horizon models.Horizon, status models.HealthStatus) (*models.ActiveModelState, error)
	Rollback(ctx context.Context, horizon models.Horizon) (*models.ActiveModelState, error)
}

// AuditSink accepts append-only audit entries. Append is non-blocking and
// best-effort: failures are logged and discarded, never surfaced to the
// operation being audited.
type AuditSink interface {
	Append(entry models.AuditLogEntry)
}

// AuditReader serves read-side projections of the ledger.
type AuditReader interface {
	Recent(ctx context.Context, limit int, filter AuditFilter) ([]models.AuditLogEntry, error)
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Horizon models.Horizon
	Action  models.AuditAction
	Since   time.Time
}

// ArtifactStore persists trained model binaries.
type ArtifactStore interface {
	Store(ctx context.Context, modelID string, artifact io.Reader) (string, error)
	Retrieve(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) (bool, error)
}

// SwitchStore holds the operator kill switch and guard cooldown stamps,
// shared across worker processes.
type SwitchStore interface {
	KillSwitchEnabled(ctx context.Context) (bool, error)
	SetKillSwitch(ctx context.Context, enabled bool) error
	LastAttempt(ctx context.Context, horizon models.Horizon) (time.Time, error)
	RecordAttempt(ctx context.Context, horizon models.Horizon, at time.Time) error
}

// SignalSource supplies the dataset-pipeline health signals the rollback
// guard evaluates before allowing a retrain or promotion.
type SignalSource interface {
	Signals(ctx context.Context, horizon models.Horizon) (GuardSignals, error)
}

// GuardSignals is a point-in-time snapshot of pipeline health.
type GuardSignals struct {
	DriftSeverity    float64
	SampleCount      int
	LiveShare        float64
	SchemaIntact     bool
	IngestionBacklog int
}
