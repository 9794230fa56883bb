package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// ExportRef identifies one versioned dataset export produced by the
// feature pipeline.
type ExportRef struct {
	DatasetRef        string    `json:"dataset_ref"`
	FeatureSetVersion string    `json:"feature_set_version"`
	RowCount          int64     `json:"row_count"`
	ExportedAt        time.Time `json:"exported_at"`
}

// Resolver resolves the newest dataset export for a classifier task.
type Resolver interface {
	LatestRef(ctx context.Context, task models.Task, network string) (*ExportRef, error)
}

// HTTPResolver queries the dataset-export service.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver against the export service URL.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// LatestRef fetches the newest export for the task and network.
func (r *HTTPResolver) LatestRef(ctx context.Context, task models.Task, network string) (*ExportRef, error) {
	url := fmt.Sprintf("%s/api/v1/exports/latest?task=%s&network=%s", r.baseURL, task, network)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to build export request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to fetch latest export")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewStorageError(errors.CodeReadFailed, fmt.Sprintf("No export available for %s/%s", task, network))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewStorageError(errors.CodeReadFailed, fmt.Sprintf("Export service returned status %d", resp.StatusCode))
	}

	var ref ExportRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decode export reference")
	}
	return &ref, nil
}

// StaticResolver serves a fixed export per (task, network) pair. Used in
// tests and local development.
type StaticResolver struct {
	mu   sync.RWMutex
	refs map[string]*ExportRef
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{refs: make(map[string]*ExportRef)}
}

func key(task models.Task, network string) string {
	return string(task) + "/" + network
}

// Set registers the export returned for the pair.
func (r *StaticResolver) Set(task models.Task, network string, ref ExportRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[key(task, network)] = &ref
}

// LatestRef returns the registered export or a read error when none is set.
func (r *StaticResolver) LatestRef(ctx context.Context, task models.Task, network string) (*ExportRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.refs[key(task, network)]
	if !ok {
		return nil, errors.NewStorageError(errors.CodeReadFailed, fmt.Sprintf("No export available for %s/%s", task, network))
	}
	out := *ref
	return &out, nil
}
