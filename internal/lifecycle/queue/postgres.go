package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// PostgresConfig holds connection settings for the Postgres queue.
type PostgresConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	ConnectTimeout  time.Duration `json:"connect_timeout"`
	MaxConnections  int           `json:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// PostgresQueue is the durable Queue shared by all worker processes.
// Single-in-flight is enforced by a partial unique index over
// non-terminal jobs, and claims use FOR UPDATE SKIP LOCKED so exactly one
// concurrent claimer wins a given job.
type PostgresQueue struct {
	config *PostgresConfig
	db     *sql.DB
	audit  interfaces.AuditSink
	logger *logrus.Logger
}

// NewPostgresQueue creates a Postgres-backed retrain queue.
func NewPostgresQueue(config *PostgresConfig, audit interfaces.AuditSink, logger *logrus.Logger) (*PostgresQueue, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Postgres queue config cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresQueue{config: config, audit: audit, logger: logger}, nil
}

// Connect opens the connection pool and ensures the schema exists.
func (q *PostgresQueue) Connect(ctx context.Context) error {
	if q.db != nil {
		return nil
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		q.config.Host, q.config.Port, q.config.Username, q.config.Password,
		q.config.Database, q.config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open queue database connection")
	}

	db.SetMaxOpenConns(q.config.MaxConnections)
	db.SetMaxIdleConns(q.config.MaxIdleConns)
	db.SetConnMaxLifetime(q.config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, q.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to ping queue database")
	}

	q.db = db

	if err := q.initializeSchema(ctx); err != nil {
		db.Close()
		q.db = nil
		return err
	}

	q.logger.WithFields(logrus.Fields{
		"host":     q.config.Host,
		"database": q.config.Database,
	}).Info("Connected to Postgres retrain queue")

	return nil
}

// Close releases the connection pool.
func (q *PostgresQueue) Close() error {
	if q.db == nil {
		return nil
	}
	err := q.db.Close()
	q.db = nil
	return err
}

func (q *PostgresQueue) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS retrain_jobs (
		id              UUID PRIMARY KEY,
		task            TEXT NOT NULL,
		network         TEXT NOT NULL,
		reason          TEXT NOT NULL,
		status          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		started_at      TIMESTAMPTZ,
		finished_at     TIMESTAMPTZ,
		error           TEXT NOT NULL DEFAULT '',
		training_config JSONB NOT NULL DEFAULT '{}'
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_single_inflight
		ON retrain_jobs (task, network)
		WHERE status IN ('PENDING', 'RUNNING');
	CREATE INDEX IF NOT EXISTS idx_jobs_pending ON retrain_jobs (created_at) WHERE status = 'PENDING';
	`

	if _, err := q.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "Failed to initialize queue schema")
	}
	return nil
}

const jobColumns = `id, task, network, reason, status, created_at, started_at, finished_at, error, training_config`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.RetrainJob, error) {
	var job models.RetrainJob
	var task, reason, status string
	var startedAt, finishedAt sql.NullTime
	var cfgJSON []byte

	if err := row.Scan(&job.ID, &task, &job.Network, &reason, &status,
		&job.CreatedAt, &startedAt, &finishedAt, &job.Error, &cfgJSON); err != nil {
		return nil, err
	}

	job.Task = models.Task(task)
	job.Reason = models.RetrainReason(reason)
	job.Status = models.JobStatus(status)
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &job.TrainingConfig); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

// Enqueue inserts a PENDING job. The partial unique index turns a racing
// duplicate into a constraint violation, reported as DUPLICATE_IN_FLIGHT.
func (q *PostgresQueue) Enqueue(ctx context.Context, task models.Task, network string, reason models.RetrainReason, cfg models.TrainingConfig) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeQueue, errors.CodeWriteFailed, "Failed to encode training config")
	}

	jobID := uuid.New().String()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO retrain_jobs (id, task, network, reason, status, created_at, training_config)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)`,
		jobID, string(task), network, string(reason), string(models.JobStatusPending), cfgJSON)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", errors.NewQueueError(errors.CodeDuplicateInFlight, "Retrain job already in flight for this task and network").
				WithContext("task", string(task)).
				WithContext("network", network)
		}
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to enqueue retrain job")
	}

	q.logger.WithFields(logrus.Fields{
		"jobID":   jobID,
		"task":    task,
		"network": network,
		"reason":  reason,
	}).Info("Retrain job enqueued")

	q.auditTransition(jobID, cfg.DatasetRef, reason, models.AuditJobEnqueued, "Retrain job enqueued: "+string(reason))

	return jobID, nil
}

// ClaimNext flips the oldest PENDING job to RUNNING. The subselect with
// FOR UPDATE SKIP LOCKED guarantees only one concurrent claimer wins a
// given job, across processes. Returns (nil, nil) when the queue is empty.
func (q *PostgresQueue) ClaimNext(ctx context.Context) (*models.RetrainJob, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE retrain_jobs
		SET status = $1, started_at = NOW()
		WHERE id = (
			SELECT id FROM retrain_jobs
			WHERE status = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		string(models.JobStatusRunning), string(models.JobStatusPending))

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to claim retrain job")
	}

	q.auditTransition(job.ID, job.TrainingConfig.DatasetRef, job.Reason, models.AuditJobClaimed, "Retrain job claimed")

	return job, nil
}

// Complete transitions a job to DONE; idempotent on terminal jobs.
func (q *PostgresQueue) Complete(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, models.JobStatusDone, "")
}

// Fail transitions a job to FAILED; idempotent on terminal jobs.
func (q *PostgresQueue) Fail(ctx context.Context, jobID, errMsg string) error {
	return q.finish(ctx, jobID, models.JobStatusFailed, errMsg)
}

func (q *PostgresQueue) finish(ctx context.Context, jobID string, terminal models.JobStatus, errMsg string) error {
	row := q.db.QueryRowContext(ctx, `
		UPDATE retrain_jobs
		SET status = $1, finished_at = NOW(), error = $2
		WHERE id = $3 AND status NOT IN ($4, $5)
		RETURNING `+jobColumns,
		string(terminal), errMsg, jobID,
		string(models.JobStatusDone), string(models.JobStatusFailed))

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		// Either unknown or already terminal; distinguish for the caller.
		exists, lookupErr := q.exists(ctx, jobID)
		if lookupErr != nil {
			return lookupErr
		}
		if !exists {
			return errors.NewQueueError(errors.CodeJobNotFound, "Retrain job not found").
				WithContext("jobID", jobID)
		}
		return nil
	}
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to finish retrain job")
	}

	if terminal == models.JobStatusDone {
		q.auditTransition(job.ID, job.TrainingConfig.DatasetRef, job.Reason, models.AuditJobCompleted, "Retrain job completed")
	} else {
		q.auditTransition(job.ID, job.TrainingConfig.DatasetRef, job.Reason, models.AuditJobFailed, "Retrain job failed: "+errMsg)
	}

	return nil
}

func (q *PostgresQueue) exists(ctx context.Context, jobID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM retrain_jobs WHERE id = $1`, jobID).Scan(&n)
	if err != nil {
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to look up retrain job")
	}
	return n > 0, nil
}

// Get returns the job by id.
func (q *PostgresQueue) Get(ctx context.Context, jobID string) (*models.RetrainJob, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM retrain_jobs WHERE id = $1`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewQueueError(errors.CodeJobNotFound, "Retrain job not found").
			WithContext("jobID", jobID)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read retrain job")
	}
	return job, nil
}

// List returns matching jobs, newest first.
func (q *PostgresQueue) List(ctx context.Context, filter interfaces.JobFilter) ([]*models.RetrainJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM retrain_jobs
		WHERE ($1 = '' OR task = $1)
		  AND ($2 = '' OR network = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4`,
		string(filter.Task), filter.Network, string(filter.Status), limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to list retrain jobs")
	}
	defer rows.Close()

	var out []*models.RetrainJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to scan retrain job")
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (q *PostgresQueue) auditTransition(jobID, datasetRef string, reason models.RetrainReason, action models.AuditAction, msg string) {
	if q.audit == nil {
		return
	}
	q.audit.Append(models.AuditLogEntry{
		Action:           action,
		Reason:           msg,
		DatasetVersionID: datasetRef,
		TriggeredBy:      triggerFor(reason),
	})
}
