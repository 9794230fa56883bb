package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

func newTestRegistry(t *testing.T) *ModelRegistry {
	t.Helper()
	return NewModelRegistry(nil, nil, nil)
}

func version(id string) *models.ModelVersion {
	return &models.ModelVersion{
		ModelID: id,
		Task:    models.TaskMarketClassifier,
		Network: "ethereum",
		Metrics: models.ClassifierMetrics{Accuracy: 0.85, Precision: 0.82, Recall: 0.80, F1Score: 0.81},
	}
}

func TestRegisterAssignsShadowAndMonotonicVersions(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for i, id := range []string{"m-1", "m-2", "m-3"} {
		mv := version(id)
		require.NoError(t, r.Register(ctx, mv))
		assert.Equal(t, models.ModelStatusShadow, mv.Status)
		assert.Equal(t, i+1, mv.Version)
		assert.False(t, mv.TrainedAt.IsZero())
	}

	// A different (task, network) pair numbers independently.
	other := version("m-sol")
	other.Network = "solana"
	require.NoError(t, r.Register(ctx, other))
	assert.Equal(t, 1, other.Version)
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	err := r.Register(ctx, version("m-1"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeModelAlreadyExists))
}

func TestRegisterValidatesRequiredFields(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	err := r.Register(ctx, nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))

	mv := version("")
	err = r.Register(ctx, mv)
	assert.True(t, errors.IsCode(err, errors.CodeMissingField))

	mv = version("m-1")
	mv.Network = ""
	err = r.Register(ctx, mv)
	assert.True(t, errors.IsCode(err, errors.CodeMissingField))
}

func TestPromoteDemotesPriorActive(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	require.NoError(t, r.Register(ctx, version("m-2")))

	demoted, err := r.Promote(ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, demoted)

	demoted, err = r.Promote(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "m-1", demoted)

	m1, err := r.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusArchived, m1.Status)

	active, err := r.GetActive(ctx, models.TaskMarketClassifier, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "m-2", active.ModelID)
}

func TestPromoteRequiresShadowStatus(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Promote(ctx, "missing")
	assert.True(t, errors.IsCode(err, errors.CodeModelNotFound))

	require.NoError(t, r.Register(ctx, version("m-1")))
	_, err = r.Promote(ctx, "m-1")
	require.NoError(t, err)

	// Already active, cannot promote twice.
	_, err = r.Promote(ctx, "m-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeModelNotShadow))
}

func TestUndoPromoteRestoresBothStatuses(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	require.NoError(t, r.Register(ctx, version("m-2")))
	_, err := r.Promote(ctx, "m-1")
	require.NoError(t, err)

	demoted, err := r.Promote(ctx, "m-2")
	require.NoError(t, err)
	require.NoError(t, r.UndoPromote(ctx, "m-2", demoted))

	m1, err := r.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusActive, m1.Status)

	m2, err := r.Get(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusShadow, m2.Status)
}

func TestUndoPromoteWithoutPriorActive(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	_, err := r.Promote(ctx, "m-1")
	require.NoError(t, err)

	require.NoError(t, r.UndoPromote(ctx, "m-1", ""))
	m1, err := r.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusShadow, m1.Status)

	_, err = r.GetActive(ctx, models.TaskMarketClassifier, "ethereum")
	assert.True(t, errors.IsCode(err, errors.CodeModelNotFound))
}

func TestReinstateSwapsActiveAndArchived(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	require.NoError(t, r.Register(ctx, version("m-2")))
	_, err := r.Promote(ctx, "m-1")
	require.NoError(t, err)
	_, err = r.Promote(ctx, "m-2")
	require.NoError(t, err)

	// Roll back: m-1 returns to ACTIVE and m-2 is archived.
	require.NoError(t, r.Reinstate(ctx, "m-1", "m-2"))

	active, err := r.GetActive(ctx, models.TaskMarketClassifier, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "m-1", active.ModelID)

	m2, err := r.Get(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusArchived, m2.Status)
}

func TestReinstateUnknownModel(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	err := r.Reinstate(ctx, "missing", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeModelNotFound))
}

func TestArchive(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	require.NoError(t, r.Archive(ctx, "m-1"))

	m1, err := r.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusArchived, m1.Status)

	assert.True(t, errors.IsCode(r.Archive(ctx, "missing"), errors.CodeModelNotFound))
}

func TestGetShadowCandidatesNewestFirst(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	require.NoError(t, r.Register(ctx, version("m-2")))
	require.NoError(t, r.Register(ctx, version("m-3")))
	_, err := r.Promote(ctx, "m-2")
	require.NoError(t, err)

	candidates, err := r.GetShadowCandidates(ctx, models.TaskMarketClassifier, "ethereum")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "m-3", candidates[0].ModelID)
	assert.Equal(t, "m-1", candidates[1].ModelID)
}

func TestGetReturnsCopies(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))

	got, err := r.Get(ctx, "m-1")
	require.NoError(t, err)
	got.Status = models.ModelStatusArchived
	got.Metrics.F1Score = 0

	again, err := r.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModelStatusShadow, again.Status)
	assert.Equal(t, 0.81, again.Metrics.F1Score)
}

func TestListFiltersByTaskAndNetwork(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, version("m-1")))
	sol := version("m-sol")
	sol.Network = "solana"
	require.NoError(t, r.Register(ctx, sol))
	actor := version("m-actor")
	actor.Task = models.TaskActorClassifier
	require.NoError(t, r.Register(ctx, actor))

	all, err := r.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	eth, err := r.List(ctx, models.TaskMarketClassifier, "ethereum")
	require.NoError(t, err)
	require.Len(t, eth, 1)
	assert.Equal(t, "m-1", eth[0].ModelID)
}
