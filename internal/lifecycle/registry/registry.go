// Package registry is the versioned catalogue of trained classifier
// artifacts. A model version is immutable after registration except for
// its lifecycle status: SHADOW on entry, ACTIVE while serving, ARCHIVED
// once superseded. Exactly one version per (task, network) may be ACTIVE.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Config configures the model registry.
type Config struct {
	StorageBackend string `json:"storage_backend"` // local, s3
	StoragePath    string `json:"storage_path"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3Prefix       string `json:"s3_prefix"`
}

// ModelRegistry is the in-memory catalogue backed by an artifact store.
// The registry owns status transitions only; metrics and feature metadata
// are frozen at registration.
type ModelRegistry struct {
	logger    *logrus.Logger
	config    *Config
	artifacts interfaces.ArtifactStore
	mu        sync.RWMutex
	byID      map[string]*models.ModelVersion
	versions  map[pairKey]int // highest version seen per (task, network)
}

type pairKey struct {
	task    models.Task
	network string
}

// NewModelRegistry creates a model registry. The artifact store may be
// nil when callers register pre-uploaded artifacts by reference only.
func NewModelRegistry(config *Config, artifacts interfaces.ArtifactStore, logger *logrus.Logger) *ModelRegistry {
	if config == nil {
		config = &Config{StorageBackend: "local", StoragePath: "./models"}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ModelRegistry{
		logger:    logger,
		config:    config,
		artifacts: artifacts,
		byID:      make(map[string]*models.ModelVersion),
		versions:  make(map[pairKey]int),
	}
}

// Register inserts a new model version with status SHADOW. Version
// numbers are assigned monotonically per (task, network).
func (r *ModelRegistry) Register(ctx context.Context, mv *models.ModelVersion) error {
	if err := validateModelVersion(mv); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[mv.ModelID]; exists {
		return errors.NewRegistryError(errors.CodeModelAlreadyExists, "Model version already registered").
			WithContext("modelID", mv.ModelID)
	}

	key := pairKey{mv.Task, mv.Network}
	r.versions[key]++
	mv.Version = r.versions[key]
	mv.Status = models.ModelStatusShadow
	if mv.TrainedAt.IsZero() {
		mv.TrainedAt = time.Now().UTC()
	}

	cp := *mv
	r.byID[mv.ModelID] = &cp

	r.logger.WithFields(logrus.Fields{
		"modelID": mv.ModelID,
		"task":    mv.Task,
		"network": mv.Network,
		"version": mv.Version,
	}).Info("Registered shadow model version")

	return nil
}

// Promote sets the model ACTIVE and demotes the prior ACTIVE entry for
// the same (task, network) to ARCHIVED. Both status changes happen under
// one lock; the returned id of the demoted model lets the caller undo
// the promotion if the coupled active-state switch fails.
func (r *ModelRegistry) Promote(ctx context.Context, modelID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.byID[modelID]
	if !ok {
		return "", errors.NewRegistryError(errors.CodeModelNotFound, "Model version not found").
			WithContext("modelID", modelID)
	}
	if mv.Status != models.ModelStatusShadow {
		return "", errors.NewRegistryError(errors.CodeModelNotShadow, "Only shadow model versions can be promoted").
			WithContext("modelID", modelID).
			WithContext("status", string(mv.Status))
	}

	var demoted string
	for _, other := range r.byID {
		if other.Task == mv.Task && other.Network == mv.Network && other.Status == models.ModelStatusActive {
			other.Status = models.ModelStatusArchived
			demoted = other.ModelID
			break
		}
	}
	mv.Status = models.ModelStatusActive

	r.logger.WithFields(logrus.Fields{
		"modelID": modelID,
		"demoted": demoted,
		"task":    mv.Task,
		"network": mv.Network,
	}).Info("Promoted model version to active")

	return demoted, nil
}

// UndoPromote compensates a promotion whose coupled state switch failed:
// the candidate returns to SHADOW and the previously active model (if
// any) returns to ACTIVE.
func (r *ModelRegistry) UndoPromote(ctx context.Context, modelID, priorActiveID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.byID[modelID]
	if !ok {
		return errors.NewRegistryError(errors.CodeModelNotFound, "Model version not found").
			WithContext("modelID", modelID)
	}
	mv.Status = models.ModelStatusShadow

	if priorActiveID != "" {
		if prior, ok := r.byID[priorActiveID]; ok {
			prior.Status = models.ModelStatusActive
		}
	}

	r.logger.WithFields(logrus.Fields{
		"modelID":     modelID,
		"priorActive": priorActiveID,
	}).Warn("Promotion undone after failed state switch")

	return nil
}

// Reinstate makes restoreID ACTIVE again and archives archiveID, both
// under one lock. Used on rollback: the model being rolled back to was
// demoted to ARCHIVED when its successor was promoted, and the registry
// must agree with the state store about which model serves.
func (r *ModelRegistry) Reinstate(ctx context.Context, restoreID, archiveID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	restored, ok := r.byID[restoreID]
	if !ok {
		return errors.NewRegistryError(errors.CodeModelNotFound, "Model version not found").
			WithContext("modelID", restoreID)
	}

	if archiveID != "" {
		if archived, ok := r.byID[archiveID]; ok {
			archived.Status = models.ModelStatusArchived
		}
	}
	restored.Status = models.ModelStatusActive

	r.logger.WithFields(logrus.Fields{
		"restored": restoreID,
		"archived": archiveID,
	}).Info("Reinstated model version as active")

	return nil
}

// Archive marks a model version ARCHIVED. Used on rollback of a
// promoted-then-reverted model.
func (r *ModelRegistry) Archive(ctx context.Context, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.byID[modelID]
	if !ok {
		return errors.NewRegistryError(errors.CodeModelNotFound, "Model version not found").
			WithContext("modelID", modelID)
	}
	mv.Status = models.ModelStatusArchived

	r.logger.WithField("modelID", modelID).Info("Archived model version")
	return nil
}

// Get returns the model version by id.
func (r *ModelRegistry) Get(ctx context.Context, modelID string) (*models.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mv, ok := r.byID[modelID]
	if !ok {
		return nil, errors.NewRegistryError(errors.CodeModelNotFound, "Model version not found").
			WithContext("modelID", modelID)
	}
	cp := *mv
	return &cp, nil
}

// GetActive returns the single ACTIVE version for (task, network).
func (r *ModelRegistry) GetActive(ctx context.Context, task models.Task, network string) (*models.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, mv := range r.byID {
		if mv.Task == task && mv.Network == network && mv.Status == models.ModelStatusActive {
			cp := *mv
			return &cp, nil
		}
	}
	return nil, errors.NewRegistryError(errors.CodeModelNotFound, "No active model version for task and network").
		WithContext("task", string(task)).
		WithContext("network", network)
}

// GetShadowCandidates returns all SHADOW versions for (task, network),
// newest first.
func (r *ModelRegistry) GetShadowCandidates(ctx context.Context, task models.Task, network string) ([]*models.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ModelVersion
	for _, mv := range r.byID {
		if mv.Task == task && mv.Network == network && mv.Status == models.ModelStatusShadow {
			cp := *mv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// List returns all versions for (task, network), every status.
func (r *ModelRegistry) List(ctx context.Context, task models.Task, network string) ([]*models.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ModelVersion
	for _, mv := range r.byID {
		if (task == "" || mv.Task == task) && (network == "" || mv.Network == network) {
			cp := *mv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func validateModelVersion(mv *models.ModelVersion) error {
	if mv == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "Model version is required")
	}
	if mv.ModelID == "" {
		return errors.NewValidationError(errors.CodeMissingField, "Model id is required")
	}
	if mv.Task == "" {
		return errors.NewValidationError(errors.CodeMissingField, "Task is required")
	}
	if mv.Network == "" {
		return errors.NewValidationError(errors.CodeMissingField, "Network is required")
	}
	return nil
}
