package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// PostgresConfig holds connection settings for the Postgres state store.
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

// PostgresStore is the durable StateStore. One row per horizon; every
// mutation is a single UPDATE (or INSERT for the first switch) guarded by
// an optimistic state_version check, so concurrent writers lose with
// STATE_CONFLICT instead of tearing the record. The previous-id capture
// is an explicit read followed by a compare-and-swap on the version read,
// never a store-side self-reference.
type PostgresStore struct {
	config *PostgresConfig
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore creates a Postgres-backed state store.
func NewPostgresStore(config *PostgresConfig, logger *logrus.Logger) (*PostgresStore, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Postgres state config cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresStore{config: config, logger: logger}, nil
}

// Connect opens the connection pool and ensures the schema exists.
func (s *PostgresStore) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.config.Host, s.config.Port, s.config.Username, s.config.Password,
		s.config.Database, s.config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open state database connection")
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to ping state database")
	}

	s.db = db

	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		s.db = nil
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"host":     s.config.Host,
		"database": s.config.Database,
	}).Info("Connected to Postgres state store")

	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PostgresStore) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS active_model_state (
		horizon                      TEXT PRIMARY KEY,
		active_model_id              TEXT NOT NULL,
		previous_model_id            TEXT NOT NULL DEFAULT '',
		switched_at                  TIMESTAMPTZ NOT NULL,
		switch_reason                TEXT NOT NULL,
		health_status                TEXT NOT NULL,
		consecutive_critical_windows INT NOT NULL DEFAULT 0,
		state_version                BIGINT NOT NULL
	);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "Failed to initialize state schema")
	}
	return nil
}

const stateColumns = `horizon, active_model_id, previous_model_id, switched_at, switch_reason, health_status, consecutive_critical_windows, state_version`

func scanState(row interface{ Scan(...interface{}) error }) (*models.ActiveModelState, error) {
	var st models.ActiveModelState
	var horizon, reason, health string

	if err := row.Scan(&horizon, &st.ActiveModelID, &st.PreviousModelID, &st.SwitchedAt,
		&reason, &health, &st.ConsecutiveCriticalWindows, &st.StateVersion); err != nil {
		return nil, err
	}

	st.Horizon = models.Horizon(horizon)
	st.SwitchReason = models.SwitchReason(reason)
	st.HealthStatus = models.HealthStatus(health)
	return &st, nil
}

// Get returns the state row for the horizon.
func (s *PostgresStore) Get(ctx context.Context, horizon models.Horizon) (*models.ActiveModelState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM active_model_state WHERE horizon = $1`, string(horizon))

	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewStateError(errors.CodeStateNotFound, "No active model state for horizon").
			WithContext("horizon", string(horizon))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read active model state")
	}
	return st, nil
}

// GetAll returns every horizon's state row.
func (s *PostgresStore) GetAll(ctx context.Context) ([]*models.ActiveModelState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stateColumns+` FROM active_model_state ORDER BY horizon`)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to list active model states")
	}
	defer rows.Close()

	var out []*models.ActiveModelState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to scan active model state")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// AtomicSwitch installs newModelID as the active model. The whole
// transition is one statement: either the row flips entirely or not at
// all. A version mismatch against the record read at the start means a
// concurrent writer won, and the caller gets STATE_CONFLICT.
func (s *PostgresStore) AtomicSwitch(ctx context.Context, horizon models.Horizon, newModelID string, reason models.SwitchReason) (*models.ActiveModelState, error) {
	if newModelID == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "New model id is required")
	}

	current, err := s.Get(ctx, horizon)
	if err != nil {
		appErr, ok := err.(*errors.AppError)
		if !ok || appErr.Code != errors.CodeStateNotFound {
			return nil, err
		}
		return s.insertInitial(ctx, horizon, newModelID)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE active_model_state
		SET previous_model_id = active_model_id,
		    active_model_id = $1,
		    switched_at = NOW(),
		    switch_reason = $2,
		    health_status = $3,
		    consecutive_critical_windows = 0,
		    state_version = state_version + 1
		WHERE horizon = $4 AND state_version = $5
		RETURNING `+stateColumns,
		newModelID, string(reason), string(models.HealthHealthy),
		string(horizon), current.StateVersion)

	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewStateError(errors.CodeStateConflict, "Active model state changed since it was read").
			WithContext("horizon", string(horizon))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to switch active model")
	}

	s.logger.WithFields(logrus.Fields{
		"horizon":  horizon,
		"activeID": st.ActiveModelID,
		"prevID":   st.PreviousModelID,
		"reason":   st.SwitchReason,
	}).Info("Active model switched")

	return st, nil
}

func (s *PostgresStore) insertInitial(ctx context.Context, horizon models.Horizon, newModelID string) (*models.ActiveModelState, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO active_model_state
			(horizon, active_model_id, previous_model_id, switched_at, switch_reason, health_status, consecutive_critical_windows, state_version)
		VALUES ($1, $2, '', NOW(), $3, $4, 0, 1)
		ON CONFLICT (horizon) DO NOTHING
		RETURNING `+stateColumns,
		string(horizon), newModelID, string(models.SwitchReasonInitial), string(models.HealthHealthy))

	st, err := scanState(row)
	if err == sql.ErrNoRows {
		// Lost the race to another writer's initial insert.
		return nil, errors.NewStateError(errors.CodeStateConflict, "Active model state changed since it was read").
			WithContext("horizon", string(horizon))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to record initial active model")
	}
	return st, nil
}

// UpdateHealth records a health observation; CRITICAL increments the
// consecutive counter, anything else resets it.
func (s *PostgresStore) UpdateHealth(ctx context.Context, horizon models.Horizon, status models.HealthStatus) (*models.ActiveModelState, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE active_model_state
		SET health_status = $1,
		    consecutive_critical_windows = CASE WHEN $1 = $2 THEN consecutive_critical_windows + 1 ELSE 0 END,
		    state_version = state_version + 1
		WHERE horizon = $3
		RETURNING `+stateColumns,
		string(status), string(models.HealthCritical), string(horizon))

	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewStateError(errors.CodeStateNotFound, "No active model state for horizon").
			WithContext("horizon", string(horizon))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to update health status")
	}
	return st, nil
}

// Rollback swaps active and previous ids, one step back only.
func (s *PostgresStore) Rollback(ctx context.Context, horizon models.Horizon) (*models.ActiveModelState, error) {
	current, err := s.Get(ctx, horizon)
	if err != nil {
		return nil, err
	}
	if current.PreviousModelID == "" {
		return nil, errors.NewStateError(errors.CodeNothingToRoll, "No previous model version to roll back to").
			WithContext("horizon", string(horizon))
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE active_model_state
		SET active_model_id = previous_model_id,
		    previous_model_id = active_model_id,
		    switched_at = NOW(),
		    switch_reason = $1,
		    health_status = $2,
		    consecutive_critical_windows = 0,
		    state_version = state_version + 1
		WHERE horizon = $3 AND state_version = $4
		RETURNING `+stateColumns,
		string(models.SwitchReasonRollback), string(models.HealthHealthy),
		string(horizon), current.StateVersion)

	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewStateError(errors.CodeStateConflict, "Active model state changed since it was read").
			WithContext("horizon", string(horizon))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to roll back active model")
	}

	s.logger.WithFields(logrus.Fields{
		"horizon":  horizon,
		"activeID": st.ActiveModelID,
		"prevID":   st.PreviousModelID,
	}).Warn("Active model rolled back")

	return st, nil
}
