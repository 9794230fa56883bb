package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// StaticSignalSource returns a fixed snapshot. Used in tests and in dev
// deployments without a feature pipeline.
type StaticSignalSource struct {
	mu      sync.RWMutex
	signals interfaces.GuardSignals
}

// NewStaticSignalSource creates a source reporting a healthy pipeline.
func NewStaticSignalSource() *StaticSignalSource {
	return &StaticSignalSource{
		signals: interfaces.GuardSignals{
			DriftSeverity:    0,
			SampleCount:      1000,
			LiveShare:        1.0,
			SchemaIntact:     true,
			IngestionBacklog: 0,
		},
	}
}

// Set replaces the reported snapshot.
func (s *StaticSignalSource) Set(signals interfaces.GuardSignals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = signals
}

// Signals returns the current snapshot.
func (s *StaticSignalSource) Signals(ctx context.Context, horizon models.Horizon) (interfaces.GuardSignals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signals, nil
}

// HTTPSignalSource pulls pipeline health from the feature service.
type HTTPSignalSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSignalSource creates a source against the feature service URL.
func NewHTTPSignalSource(baseURL string, timeout time.Duration) *HTTPSignalSource {
	return &HTTPSignalSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type signalsResponse struct {
	DriftSeverity    float64 `json:"drift_severity"`
	SampleCount      int     `json:"sample_count"`
	LiveShare        float64 `json:"live_share"`
	SchemaIntact     bool    `json:"schema_intact"`
	IngestionBacklog int     `json:"ingestion_backlog"`
}

// Signals fetches the snapshot for the horizon.
func (s *HTTPSignalSource) Signals(ctx context.Context, horizon models.Horizon) (interfaces.GuardSignals, error) {
	url := fmt.Sprintf("%s/api/v1/pipeline/health?horizon=%s", s.baseURL, horizon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return interfaces.GuardSignals{}, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to build signals request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return interfaces.GuardSignals{}, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to fetch pipeline signals")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return interfaces.GuardSignals{}, errors.NewStorageError(errors.CodeReadFailed, fmt.Sprintf("Pipeline signals returned status %d", resp.StatusCode))
	}

	var body signalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return interfaces.GuardSignals{}, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decode pipeline signals")
	}

	return interfaces.GuardSignals{
		DriftSeverity:    body.DriftSeverity,
		SampleCount:      body.SampleCount,
		LiveShare:        body.LiveShare,
		SchemaIntact:     body.SchemaIntact,
		IngestionBacklog: body.IngestionBacklog,
	}, nil
}
