// Package state owns the per-horizon active-model record, the single
// source of truth for which model version serves live traffic. All
// mutation goes through AtomicSwitch, UpdateHealth or Rollback; readers
// can never observe a half-applied switch.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// MemoryStore is the in-process StateStore. Writes are serialized by a
// single mutex and reads return copies, so a concurrent reader sees
// either the whole previous record or the whole new one.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[models.Horizon]*models.ActiveModelState
	logger *logrus.Logger
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryStore{
		states: make(map[models.Horizon]*models.ActiveModelState),
		logger: logger,
		now:    time.Now,
	}
}

// Get returns a copy of the state for the horizon.
func (s *MemoryStore) Get(ctx context.Context, horizon models.Horizon) (*models.ActiveModelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[horizon]
	if !ok {
		return nil, errors.NewStateError(errors.CodeStateNotFound, "No active model state for horizon").
			WithContext("horizon", string(horizon))
	}
	cp := *st
	return &cp, nil
}

// GetAll returns copies of every horizon's state.
func (s *MemoryStore) GetAll(ctx context.Context) ([]*models.ActiveModelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ActiveModelState, 0, len(s.states))
	for _, st := range s.states {
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}

// AtomicSwitch installs newModelID as the active model for the horizon.
// The previously active id becomes PreviousModelID, health resets to
// HEALTHY, the critical-window counter resets to zero and SwitchedAt is
// stamped, all under one lock so no caller observes a torn record. The
// first switch for a horizon is recorded with reason INITIAL and an
// empty previous id.
func (s *MemoryStore) AtomicSwitch(ctx context.Context, horizon models.Horizon, newModelID string, reason models.SwitchReason) (*models.ActiveModelState, error) {
	if newModelID == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "New model id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.states[horizon]

	next := &models.ActiveModelState{
		Horizon:       horizon,
		ActiveModelID: newModelID,
		SwitchedAt:    s.now().UTC(),
		SwitchReason:  reason,
		HealthStatus:  models.HealthHealthy,
	}

	if exists {
		next.PreviousModelID = prev.ActiveModelID
		next.StateVersion = prev.StateVersion + 1
	} else {
		next.SwitchReason = models.SwitchReasonInitial
		next.StateVersion = 1
	}

	s.states[horizon] = next

	s.logger.WithFields(logrus.Fields{
		"horizon":  horizon,
		"activeID": next.ActiveModelID,
		"prevID":   next.PreviousModelID,
		"reason":   next.SwitchReason,
	}).Info("Active model switched")

	cp := *next
	return &cp, nil
}

// UpdateHealth records a health observation. A CRITICAL status increments
// the consecutive-critical counter; anything else resets it to zero.
func (s *MemoryStore) UpdateHealth(ctx context.Context, horizon models.Horizon, status models.HealthStatus) (*models.ActiveModelState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[horizon]
	if !ok {
		return nil, errors.NewStateError(errors.CodeStateNotFound, "No active model state for horizon").
			WithContext("horizon", string(horizon))
	}

	st.HealthStatus = status
	if status == models.HealthCritical {
		st.ConsecutiveCriticalWindows++
	} else {
		st.ConsecutiveCriticalWindows = 0
	}
	st.StateVersion++

	cp := *st
	return &cp, nil
}

// Rollback switches back to PreviousModelID, one step only. The model
// being rolled away from becomes the new previous id, so a second
// rollback returns to where you started rather than walking further back.
func (s *MemoryStore) Rollback(ctx context.Context, horizon models.Horizon) (*models.ActiveModelState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[horizon]
	if !ok {
		return nil, errors.NewStateError(errors.CodeStateNotFound, "No active model state for horizon").
			WithContext("horizon", string(horizon))
	}
	if st.PreviousModelID == "" {
		return nil, errors.NewStateError(errors.CodeNothingToRoll, "No previous model version to roll back to").
			WithContext("horizon", string(horizon))
	}

	next := &models.ActiveModelState{
		Horizon:         horizon,
		ActiveModelID:   st.PreviousModelID,
		PreviousModelID: st.ActiveModelID,
		SwitchedAt:      s.now().UTC(),
		SwitchReason:    models.SwitchReasonRollback,
		HealthStatus:    models.HealthHealthy,
		StateVersion:    st.StateVersion + 1,
	}
	s.states[horizon] = next

	s.logger.WithFields(logrus.Fields{
		"horizon":  horizon,
		"activeID": next.ActiveModelID,
		"prevID":   next.PreviousModelID,
	}).Warn("Active model rolled back")

	cp := *next
	return &cp, nil
}
