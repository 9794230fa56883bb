package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Result is what a finished training run hands back to the lifecycle
// layer: holdout metrics, the stored artifact reference, and the feature
// set the model was trained against.
type Result struct {
	Metrics     models.ClassifierMetrics `json:"metrics"`
	ArtifactRef string                   `json:"artifact_ref"`
	FeatureMeta models.FeatureMeta       `json:"feature_meta"`
}

// Executor runs one training job to completion within the configured
// timeout. Implementations must honor context cancellation.
type Executor interface {
	Train(ctx context.Context, job *models.RetrainJob) (*Result, error)
}

// Config holds executor settings.
type Config struct {
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultConfig returns executor defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: constants.DefaultTrainingTimeout,
	}
}

// HTTPExecutor delegates training to the Python training service and
// blocks until it reports completion or the timeout elapses.
type HTTPExecutor struct {
	config Config
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPExecutor creates an executor against the training service.
func NewHTTPExecutor(config Config, logger *logrus.Logger) (*HTTPExecutor, error) {
	if config.Endpoint == "" {
		return nil, errors.NewConfigurationError("INVALID_CONFIG", "Training endpoint is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = constants.DefaultTrainingTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPExecutor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type trainRequest struct {
	JobID      string                 `json:"job_id"`
	Task       models.Task            `json:"task"`
	Network    string                 `json:"network"`
	DatasetRef string                 `json:"dataset_ref"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// Train posts the job to the training service. A deadline overrun is
// surfaced as a retryable timeout error so the job fails with a clear
// reason instead of hanging the cycle.
func (e *HTTPExecutor) Train(ctx context.Context, job *models.RetrainJob) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	e.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"task":    job.Task,
		"network": job.Network,
	}).Info("Starting training run")

	payload, err := json.Marshal(trainRequest{
		JobID:      job.ID,
		Task:       job.Task,
		Network:    job.Network,
		DatasetRef: job.TrainingConfig.DatasetRef,
		Params:     job.TrainingConfig.Hyperparameters,
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to encode training request")
	}

	url := fmt.Sprintf("%s/api/v1/train", e.config.Endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to build training request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTrainingError(errors.CodeTrainingTimeout, fmt.Sprintf("Training timed out after %s", e.config.Timeout))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeTraining, errors.CodeTrainingFailed, "Training request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTrainingError(errors.CodeTrainingFailed, fmt.Sprintf("Training service returned status %d", resp.StatusCode))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeTraining, errors.CodeTrainingFailed, "Failed to decode training result")
	}

	e.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"f1_score": result.Metrics.F1Score,
		"artifact": result.ArtifactRef,
	}).Info("Training run finished")

	return &result, nil
}

// SimulatedExecutor produces synthetic metrics without a training
// service. Used in tests and local development.
type SimulatedExecutor struct {
	Delay   time.Duration
	BaseF1  float64
	FailFor map[string]string // job ID to error message
	rng     *rand.Rand
}

// NewSimulatedExecutor creates a simulated executor seeded for
// reproducible runs.
func NewSimulatedExecutor(seed int64) *SimulatedExecutor {
	return &SimulatedExecutor{
		BaseF1:  0.80,
		FailFor: make(map[string]string),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Train returns synthetic holdout metrics after the configured delay.
func (e *SimulatedExecutor) Train(ctx context.Context, job *models.RetrainJob) (*Result, error) {
	if msg, ok := e.FailFor[job.ID]; ok {
		return nil, errors.NewTrainingError(errors.CodeTrainingFailed, msg)
	}

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, errors.NewTrainingError(errors.CodeTrainingTimeout, "Training timed out")
		}
	}

	jitter := e.rng.Float64() * 0.05
	f1 := e.BaseF1 + jitter
	return &Result{
		Metrics: models.ClassifierMetrics{
			Accuracy:  f1 + 0.02,
			Precision: f1 + 0.01,
			Recall:    f1 - 0.01,
			F1Score:   f1,
		},
		ArtifactRef: fmt.Sprintf("local://artifacts/%s/model.bin", job.ID),
		FeatureMeta: models.FeatureMeta{
			FeatureSetVersion: "fs-sim",
			RowCount:          10000,
		},
	}, nil
}
