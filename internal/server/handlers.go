package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/internal/lifecycle/orchestrator"
	"github.com/alphaintel/modelgov/internal/observability/health"
	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Handlers implements the lifecycle API endpoints.
type Handlers struct {
	orchestrator *orchestrator.Orchestrator
	queue        interfaces.Queue
	registry     interfaces.Registry
	state        interfaces.StateStore
	audit        interfaces.AuditReader
	switches     interfaces.SwitchStore
	health       *health.Checker
	logger       *logrus.Logger
	startTime    time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(deps Deps, logger *logrus.Logger) *Handlers {
	return &Handlers{
		orchestrator: deps.Orchestrator,
		queue:        deps.Queue,
		registry:     deps.Registry,
		state:        deps.State,
		audit:        deps.Audit,
		switches:     deps.Switches,
		health:       deps.Health,
		logger:       logger,
		startTime:    time.Now(),
	}
}

// Health runs the dependency probes and reports aggregated readiness.
// An unhealthy critical dependency returns 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(h.startTime).Seconds())

	if h.health == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         health.StatusHealthy,
			"uptime_seconds": uptime,
		})
		return
	}

	report := h.health.Run(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, map[string]interface{}{
		"status":         report.Status,
		"checks":         report.Checks,
		"checked_at":     report.CheckedAt,
		"uptime_seconds": uptime,
	})
}

// Version reports build metadata.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"name":    constants.AppName,
		"version": constants.AppVersion,
	})
}

// GetAllStates returns the active-model record for every horizon.
func (h *Handlers) GetAllStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.state.GetAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"states": states})
}

// GetState returns the active-model record for one horizon.
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(mux.Vars(r)["horizon"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	st, err := h.state.Get(r.Context(), horizon)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// GetAudit returns recent audit entries, newest first.
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultAuditRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > constants.MaxPageSize {
			h.writeError(w, errors.NewValidationError(errors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	filter := interfaces.AuditFilter{}
	if raw := r.URL.Query().Get("horizon"); raw != "" {
		horizon, err := parseHorizon(raw)
		if err != nil {
			h.writeError(w, err)
			return
		}
		filter.Horizon = horizon
	}
	if raw := r.URL.Query().Get("action"); raw != "" {
		filter.Action = models.AuditAction(raw)
	}

	entries, err := h.audit.Recent(r.Context(), limit, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// ListJobs returns retrain jobs, optionally filtered.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := interfaces.JobFilter{
		Task:    models.Task(r.URL.Query().Get("task")),
		Network: r.URL.Query().Get("network"),
		Status:  models.JobStatus(r.URL.Query().Get("status")),
		Limit:   constants.DefaultPageSize,
	}

	jobs, err := h.queue.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// GetJob returns one retrain job.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListModels returns shadow candidates and the active model for a pair.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	task := models.Task(r.URL.Query().Get("task"))
	network := r.URL.Query().Get("network")
	if task == "" || network == "" {
		h.writeError(w, errors.NewValidationError(errors.CodeInvalidInput, "task and network query parameters are required"))
		return
	}

	candidates, err := h.registry.GetShadowCandidates(r.Context(), task, network)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]interface{}{"shadow_candidates": candidates}
	active, err := h.registry.GetActive(r.Context(), task, network)
	if err == nil {
		resp["active"] = active
	} else if !errors.IsCode(err, errors.CodeModelNotFound) {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetModel returns one model version.
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	mv, err := h.registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, mv)
}

// GetKillSwitch reports the kill switch position.
func (h *Handlers) GetKillSwitch(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.switches.KillSwitchEnabled(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

type enqueueRequest struct {
	Horizon        models.Horizon        `json:"horizon"`
	Task           models.Task           `json:"task"`
	Network        string                `json:"network"`
	TrainingConfig models.TrainingConfig `json:"training_config"`
}

// EnqueueJob queues a manual retrain. Routed through the guard: a
// blocked pipeline refuses the request.
func (h *Handlers) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError(errors.CodeInvalidInput, "Invalid request body"))
		return
	}
	if _, err := parseHorizon(string(req.Horizon)); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Task == "" || req.Network == "" {
		h.writeError(w, errors.NewValidationError(errors.CodeInvalidInput, "task and network are required"))
		return
	}

	jobID, err := h.orchestrator.ManualEnqueue(r.Context(), req.Horizon, req.Task, req.Network, req.TrainingConfig)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

type promoteRequest struct {
	Horizon models.Horizon `json:"horizon"`
}

// Promote promotes a shadow model on operator request.
func (h *Handlers) Promote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError(errors.CodeInvalidInput, "Invalid request body"))
		return
	}
	horizon, err := parseHorizon(string(req.Horizon))
	if err != nil {
		h.writeError(w, err)
		return
	}

	modelID := mux.Vars(r)["modelId"]
	if err := h.orchestrator.ManualPromote(r.Context(), horizon, modelID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "promoted", "model_id": modelID})
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

// Rollback reverts a horizon one step on operator request.
func (h *Handlers) Rollback(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(mux.Vars(r)["horizon"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req rollbackRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.orchestrator.ManualRollback(r.Context(), horizon, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}

	st, err := h.state.Get(r.Context(), horizon)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

type killSwitchRequest struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

// SetKillSwitch flips the global kill switch.
func (h *Handlers) SetKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req killSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError(errors.CodeInvalidInput, "Invalid request body"))
		return
	}

	if err := h.orchestrator.SetKillSwitch(r.Context(), req.Enabled, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errors.CodeInternalError
	message := "Internal server error"

	if appErr, ok := err.(*errors.AppError); ok {
		status = appErr.HTTPStatus
		code = appErr.Code
		message = appErr.Message
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseHorizon(raw string) (models.Horizon, error) {
	switch models.Horizon(raw) {
	case models.Horizon7d:
		return models.Horizon7d, nil
	case models.Horizon30d:
		return models.Horizon30d, nil
	default:
		return "", errors.NewValidationError(errors.CodeInvalidHorizon,
			fmt.Sprintf("Invalid horizon %q, expected %s or %s", raw, models.Horizon7d, models.Horizon30d))
	}
}

func routeTemplate(r *http.Request) (string, error) {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "", fmt.Errorf("no route matched")
	}
	return route.GetPathTemplate()
}
