package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// blockingWriter holds every Write until released.
type blockingWriter struct {
	gate    chan struct{}
	mu      sync.Mutex
	written []models.AuditLogEntry
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{gate: make(chan struct{})}
}

func (w *blockingWriter) Write(ctx context.Context, entry models.AuditLogEntry) error {
	<-w.gate
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, entry)
	return nil
}

func (w *blockingWriter) Recent(ctx context.Context, limit int, filter interfaces.AuditFilter) ([]models.AuditLogEntry, error) {
	return nil, nil
}

// failingWriter rejects every Write.
type failingWriter struct {
	mu    sync.Mutex
	calls int
}

func (w *failingWriter) Write(ctx context.Context, entry models.AuditLogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return errors.New("storage unavailable")
}

func (w *failingWriter) Recent(ctx context.Context, limit int, filter interfaces.AuditFilter) ([]models.AuditLogEntry, error) {
	return nil, nil
}

func (w *failingWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func entry(horizon models.Horizon, action models.AuditAction) models.AuditLogEntry {
	return models.AuditLogEntry{
		Horizon:     horizon,
		Action:      action,
		Reason:      "test",
		TriggeredBy: models.TriggerScheduler,
	}
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	writer := NewMemoryWriter(0)
	log := NewLog(writer, nil, nil)

	log.Append(entry(models.Horizon7d, models.AuditTrainStarted))
	log.Close()

	entries, err := writer.Recent(context.Background(), 10, interfaces.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].AuditID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestAppendNeverBlocksWhenBufferFull(t *testing.T) {
	writer := newBlockingWriter()
	log := NewLog(writer, &LogConfig{BufferSize: 2}, nil)

	// The drain goroutine takes one entry and stalls in Write; two more
	// fill the buffer. Everything past that must drop, not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			log.Append(entry(models.Horizon7d, models.AuditTrainStarted))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a full buffer")
	}

	close(writer.gate)
	log.Close()

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.GreaterOrEqual(t, len(writer.written), 1)
	assert.LessOrEqual(t, len(writer.written), 4)
}

func TestDropHookCountsDroppedEntries(t *testing.T) {
	writer := newBlockingWriter()
	var dropped int64
	log := NewLog(writer, &LogConfig{
		BufferSize: 2,
		DropHook:   func() { atomic.AddInt64(&dropped, 1) },
	}, nil)

	for i := 0; i < 10; i++ {
		log.Append(entry(models.Horizon7d, models.AuditTrainStarted))
	}

	close(writer.gate)
	log.Close()

	// Every append either reached the writer or fired the hook.
	writer.mu.Lock()
	delivered := len(writer.written)
	writer.mu.Unlock()
	assert.Equal(t, int64(10), int64(delivered)+atomic.LoadInt64(&dropped))
	assert.Greater(t, atomic.LoadInt64(&dropped), int64(0))
}

func TestWriteFailuresNeverPropagate(t *testing.T) {
	writer := &failingWriter{}
	log := NewLog(writer, nil, nil)

	log.Append(entry(models.Horizon7d, models.AuditPromoteSucceeded))
	log.Append(entry(models.Horizon30d, models.AuditRollback))
	log.Close()

	assert.Equal(t, 2, writer.callCount())
}

func TestCloseFlushesQueuedEntries(t *testing.T) {
	writer := NewMemoryWriter(0)
	log := NewLog(writer, &LogConfig{BufferSize: 64}, nil)

	for i := 0; i < 20; i++ {
		log.Append(entry(models.Horizon7d, models.AuditHealthCheck))
	}
	log.Close()

	assert.Equal(t, 20, writer.Len())
}

func TestRecentFiltersAndOrders(t *testing.T) {
	writer := NewMemoryWriter(0)
	log := NewLog(writer, nil, nil)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seed := []models.AuditLogEntry{
		{AuditID: "a", Timestamp: base, Horizon: models.Horizon7d, Action: models.AuditTrainStarted},
		{AuditID: "b", Timestamp: base.Add(time.Hour), Horizon: models.Horizon30d, Action: models.AuditTrainStarted},
		{AuditID: "c", Timestamp: base.Add(2 * time.Hour), Horizon: models.Horizon7d, Action: models.AuditPromoteSucceeded},
		{AuditID: "d", Timestamp: base.Add(3 * time.Hour), Horizon: models.Horizon7d, Action: models.AuditTrainStarted},
	}
	for _, e := range seed {
		require.NoError(t, writer.Write(ctx, e))
	}
	defer log.Close()

	entries, err := log.Recent(ctx, 10, interfaces.AuditFilter{Horizon: models.Horizon7d})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "d", entries[0].AuditID)
	assert.Equal(t, "c", entries[1].AuditID)
	assert.Equal(t, "a", entries[2].AuditID)

	entries, err = log.Recent(ctx, 10, interfaces.AuditFilter{Action: models.AuditPromoteSucceeded})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].AuditID)

	entries, err = log.Recent(ctx, 10, interfaces.AuditFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = log.Recent(ctx, 2, interfaces.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].AuditID)
}

func TestMemoryWriterDropsOldestPastBound(t *testing.T) {
	writer := NewMemoryWriter(3)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, writer.Write(ctx, models.AuditLogEntry{AuditID: id}))
	}

	assert.Equal(t, 3, writer.Len())
	entries, err := writer.Recent(ctx, 10, interfaces.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "5", entries[0].AuditID)
	assert.Equal(t, "3", entries[2].AuditID)
}
