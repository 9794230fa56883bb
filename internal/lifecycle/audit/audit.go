package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Writer persists audit entries. Implementations only ever append; the
// ledger has no update or delete path.
type Writer interface {
	Write(ctx context.Context, entry models.AuditLogEntry) error
	Recent(ctx context.Context, limit int, filter interfaces.AuditFilter) ([]models.AuditLogEntry, error)
}

// Log is the fire-and-forget audit sink. Append never blocks the caller:
// entries go to a buffered channel drained by a single writer goroutine,
// and write failures are logged and dropped.
type Log struct {
	logger   *logrus.Logger
	writer   Writer
	entries  chan models.AuditLogEntry
	dropHook func()
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// LogConfig configures the audit sink. DropHook, when set, is invoked
// for every entry dropped on a full buffer (metrics counting).
type LogConfig struct {
	BufferSize   int           `json:"buffer_size"`
	WriteTimeout time.Duration `json:"write_timeout"`
	DropHook     func()        `json:"-"`
}

// NewLog creates an audit sink backed by the given writer.
func NewLog(writer Writer, config *LogConfig, logger *logrus.Logger) *Log {
	if config == nil {
		config = &LogConfig{}
	}
	if config.BufferSize <= 0 {
		config.BufferSize = constants.DefaultAuditBufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = constants.DefaultStorageTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	l := &Log{
		logger:   logger,
		writer:   writer,
		entries:  make(chan models.AuditLogEntry, config.BufferSize),
		dropHook: config.DropHook,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go l.drain(config.WriteTimeout)

	return l
}

// Append queues an entry for persistence. It fills in the audit id and
// timestamp when absent and returns immediately; a full buffer drops the
// entry with a logged warning rather than blocking the hot path.
func (l *Log) Append(entry models.AuditLogEntry) {
	if entry.AuditID == "" {
		entry.AuditID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	select {
	case l.entries <- entry:
	default:
		if l.dropHook != nil {
			l.dropHook()
		}
		l.logger.WithFields(logrus.Fields{
			"action": entry.Action,
			"reason": entry.Reason,
		}).Warn("Audit buffer full, dropping entry")
	}
}

// Recent returns the newest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int, filter interfaces.AuditFilter) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = constants.DefaultAuditRecentLimit
	}
	return l.writer.Recent(ctx, limit, filter)
}

// Close stops the writer goroutine after draining queued entries. Safe
// to call more than once.
func (l *Log) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

func (l *Log) drain(writeTimeout time.Duration) {
	defer close(l.doneCh)

	for {
		select {
		case entry := <-l.entries:
			l.write(entry, writeTimeout)
		case <-l.stopCh:
			// Flush whatever is still buffered, then exit.
			for {
				select {
				case entry := <-l.entries:
					l.write(entry, writeTimeout)
				default:
					return
				}
			}
		}
	}
}

func (l *Log) write(entry models.AuditLogEntry, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := l.writer.Write(ctx, entry); err != nil {
		// Audit failures must never propagate to the audited operation.
		l.logger.WithError(err).WithFields(logrus.Fields{
			"auditID": entry.AuditID,
			"action":  entry.Action,
		}).Error("Failed to persist audit entry")
	}
}
