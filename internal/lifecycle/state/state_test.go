package state

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

func TestAtomicSwitchFirstSwitchIsInitial(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	st, err := s.AtomicSwitch(ctx, models.Horizon7d, "model-1", models.SwitchReasonPromotion)
	require.NoError(t, err)

	assert.Equal(t, "model-1", st.ActiveModelID)
	assert.Empty(t, st.PreviousModelID)
	assert.Equal(t, models.SwitchReasonInitial, st.SwitchReason)
	assert.Equal(t, models.HealthHealthy, st.HealthStatus)
	assert.Equal(t, 0, st.ConsecutiveCriticalWindows)
	assert.False(t, st.SwitchedAt.IsZero())
}

func TestAtomicSwitchFieldCoupling(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.AtomicSwitch(ctx, models.Horizon7d, "model-1", models.SwitchReasonPromotion)
	require.NoError(t, err)

	// Degrade health so the reset on switch is observable.
	_, err = s.UpdateHealth(ctx, models.Horizon7d, models.HealthCritical)
	require.NoError(t, err)
	_, err = s.UpdateHealth(ctx, models.Horizon7d, models.HealthCritical)
	require.NoError(t, err)

	st, err := s.AtomicSwitch(ctx, models.Horizon7d, "model-2", models.SwitchReasonPromotion)
	require.NoError(t, err)

	assert.Equal(t, "model-2", st.ActiveModelID)
	assert.Equal(t, "model-1", st.PreviousModelID)
	assert.Equal(t, models.SwitchReasonPromotion, st.SwitchReason)
	assert.Equal(t, models.HealthHealthy, st.HealthStatus)
	assert.Equal(t, 0, st.ConsecutiveCriticalWindows)
}

func TestUpdateHealthCounterSemantics(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.AtomicSwitch(ctx, models.Horizon30d, "model-1", models.SwitchReasonPromotion)
	require.NoError(t, err)

	st, err := s.UpdateHealth(ctx, models.Horizon30d, models.HealthCritical)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConsecutiveCriticalWindows)

	st, err = s.UpdateHealth(ctx, models.Horizon30d, models.HealthCritical)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ConsecutiveCriticalWindows)

	// Any non-critical status resets the streak.
	st, err = s.UpdateHealth(ctx, models.Horizon30d, models.HealthDegraded)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ConsecutiveCriticalWindows)
	assert.Equal(t, models.HealthDegraded, st.HealthStatus)
}

func TestRollbackIsOneStepBack(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	// A chain of promotions; rollback must return to the model active
	// immediately before the last one, not to the original.
	for i := 1; i <= 4; i++ {
		_, err := s.AtomicSwitch(ctx, models.Horizon7d, fmt.Sprintf("model-%d", i), models.SwitchReasonPromotion)
		require.NoError(t, err)
	}

	st, err := s.Rollback(ctx, models.Horizon7d)
	require.NoError(t, err)

	assert.Equal(t, "model-3", st.ActiveModelID)
	assert.Equal(t, "model-4", st.PreviousModelID)
	assert.Equal(t, models.SwitchReasonRollback, st.SwitchReason)

	// A second rollback swings back, never walks further into history.
	st, err = s.Rollback(ctx, models.Horizon7d)
	require.NoError(t, err)
	assert.Equal(t, "model-4", st.ActiveModelID)
	assert.Equal(t, "model-3", st.PreviousModelID)
}

func TestRollbackWithoutPrevious(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.Rollback(ctx, models.Horizon7d)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStateNotFound))

	_, err = s.AtomicSwitch(ctx, models.Horizon7d, "model-1", models.SwitchReasonPromotion)
	require.NoError(t, err)

	_, err = s.Rollback(ctx, models.Horizon7d)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNothingToRoll))
}

func TestGetNeverObservesTornSwitch(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.AtomicSwitch(ctx, models.Horizon7d, "model-0", models.SwitchReasonPromotion)
	require.NoError(t, err)

	stop := make(chan struct{})
	var readers sync.WaitGroup

	// Readers continuously verify the active/previous coupling while a
	// writer promotes through a chain.
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				st, err := s.Get(ctx, models.Horizon7d)
				if err != nil {
					continue
				}
				if st.PreviousModelID != "" {
					// previous is always the model numbered one before
					// active; a torn read would break this.
					var an, pn int
					_, err1 := fmt.Sscanf(st.ActiveModelID, "model-%d", &an)
					_, err2 := fmt.Sscanf(st.PreviousModelID, "model-%d", &pn)
					if err1 == nil && err2 == nil {
						assert.Equal(t, an-1, pn)
					}
				}
			}
		}()
	}

	for i := 1; i <= 100; i++ {
		_, err := s.AtomicSwitch(ctx, models.Horizon7d, fmt.Sprintf("model-%d", i), models.SwitchReasonPromotion)
		require.NoError(t, err)
	}

	close(stop)
	readers.Wait()

	st, err := s.Get(ctx, models.Horizon7d)
	require.NoError(t, err)
	assert.Equal(t, "model-100", st.ActiveModelID)
	assert.Equal(t, "model-99", st.PreviousModelID)
}

func TestGetAllReturnsCopies(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := s.AtomicSwitch(ctx, models.Horizon7d, "model-a", models.SwitchReasonPromotion)
	require.NoError(t, err)
	_, err = s.AtomicSwitch(ctx, models.Horizon30d, "model-b", models.SwitchReasonPromotion)
	require.NoError(t, err)

	states, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)

	// Mutating the returned copy must not leak into the store.
	states[0].ActiveModelID = "tampered"
	fresh, err := s.Get(ctx, states[0].Horizon)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", fresh.ActiveModelID)
}
