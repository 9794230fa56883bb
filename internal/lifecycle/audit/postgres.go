package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// PostgresConfig holds connection settings for the Postgres audit writer.
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

// PostgresWriter persists the ledger to an append-only table. The writer
// deliberately has no UPDATE or DELETE statements.
type PostgresWriter struct {
	config *PostgresConfig
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresWriter creates a Postgres-backed audit writer.
func NewPostgresWriter(config *PostgresConfig, logger *logrus.Logger) (*PostgresWriter, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Postgres audit config cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresWriter{config: config, logger: logger}, nil
}

// Connect opens the connection pool and ensures the schema exists.
func (w *PostgresWriter) Connect(ctx context.Context) error {
	if w.db != nil {
		return nil
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		w.config.Host, w.config.Port, w.config.Username, w.config.Password,
		w.config.Database, w.config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open audit database connection")
	}

	db.SetMaxOpenConns(w.config.MaxConnections)
	db.SetMaxIdleConns(w.config.MaxIdleConns)
	db.SetConnMaxLifetime(w.config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, w.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to ping audit database")
	}

	w.db = db

	if err := w.initializeSchema(ctx); err != nil {
		db.Close()
		w.db = nil
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"host":     w.config.Host,
		"database": w.config.Database,
	}).Info("Connected to Postgres audit store")

	return nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}

func (w *PostgresWriter) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lifecycle_audit_log (
		audit_id           UUID PRIMARY KEY,
		ts                 TIMESTAMPTZ NOT NULL,
		horizon            TEXT,
		model_version_id   TEXT,
		dataset_version_id TEXT,
		action             TEXT NOT NULL,
		reason             TEXT NOT NULL,
		metrics_snapshot   JSONB,
		decision           TEXT,
		health_status      TEXT,
		triggered_by       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON lifecycle_audit_log (ts DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_horizon_ts ON lifecycle_audit_log (horizon, ts DESC);
	`

	if _, err := w.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "Failed to initialize audit schema")
	}
	return nil
}

// Write appends one entry to the ledger.
func (w *PostgresWriter) Write(ctx context.Context, entry models.AuditLogEntry) error {
	if w.db == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "Audit store not connected")
	}

	var metricsJSON interface{}
	if entry.MetricsSnapshot != nil {
		b, err := json.Marshal(entry.MetricsSnapshot)
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to encode metrics snapshot")
		}
		metricsJSON = b
	}

	query := `
	INSERT INTO lifecycle_audit_log
		(audit_id, ts, horizon, model_version_id, dataset_version_id, action, reason, metrics_snapshot, decision, health_status, triggered_by)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)`

	_, err := w.db.ExecContext(ctx, query,
		entry.AuditID, entry.Timestamp, string(entry.Horizon), entry.ModelVersionID,
		entry.DatasetVersionID, string(entry.Action), entry.Reason, metricsJSON,
		entry.Decision, string(entry.HealthStatus), string(entry.TriggeredBy))
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to insert audit entry")
	}
	return nil
}

// Recent returns up to limit matching entries, newest first.
func (w *PostgresWriter) Recent(ctx context.Context, limit int, filter interfaces.AuditFilter) ([]models.AuditLogEntry, error) {
	if w.db == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "Audit store not connected")
	}

	query := `
	SELECT audit_id, ts, COALESCE(horizon, ''), COALESCE(model_version_id, ''),
	       COALESCE(dataset_version_id, ''), action, reason, metrics_snapshot,
	       COALESCE(decision, ''), COALESCE(health_status, ''), triggered_by
	FROM lifecycle_audit_log
	WHERE ($1 = '' OR horizon = $1)
	  AND ($2 = '' OR action = $2)
	  AND ($3::timestamptz IS NULL OR ts >= $3)
	ORDER BY ts DESC
	LIMIT $4`

	var since interface{}
	if !filter.Since.IsZero() {
		since = filter.Since
	}

	rows, err := w.db.QueryContext(ctx, query, string(filter.Horizon), string(filter.Action), since, limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to query audit entries")
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var horizon, action, health, triggeredBy string
		var metricsJSON []byte

		if err := rows.Scan(&e.AuditID, &e.Timestamp, &horizon, &e.ModelVersionID,
			&e.DatasetVersionID, &action, &e.Reason, &metricsJSON,
			&e.Decision, &health, &triggeredBy); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to scan audit entry")
		}

		e.Horizon = models.Horizon(horizon)
		e.Action = models.AuditAction(action)
		e.HealthStatus = models.HealthStatus(health)
		e.TriggeredBy = models.TriggeredBy(triggeredBy)

		if len(metricsJSON) > 0 {
			var snapshot models.ClassifierMetrics
			if err := json.Unmarshal(metricsJSON, &snapshot); err == nil {
				e.MetricsSnapshot = &snapshot
			}
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
