package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/models"
)

// LifecycleMetrics collects Prometheus metrics for the governance loop.
type LifecycleMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *Config

	cyclesTotal       *prometheus.CounterVec
	cycleDuration     *prometheus.HistogramVec
	jobsTotal         *prometheus.CounterVec
	trainingDuration  *prometheus.HistogramVec
	comparisonsTotal  *prometheus.CounterVec
	promotionsTotal   *prometheus.CounterVec
	rollbacksTotal    *prometheus.CounterVec
	guardBlocksTotal  *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	activeModelHealth *prometheus.GaugeVec
	auditDropsTotal   prometheus.Counter
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// Config configures the metrics endpoint.
type Config struct {
	Enabled   bool   `json:"enabled"`
	Port      int    `json:"port"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
}

func getDefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      constants.DefaultMetricsPort,
		Path:      "/metrics",
		Namespace: "modelgov",
	}
}

// NewLifecycleMetrics creates and registers the collectors.
func NewLifecycleMetrics(config *Config, logger *logrus.Logger) (*LifecycleMetrics, error) {
	if config == nil {
		config = getDefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	m := &LifecycleMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	ns := config.Namespace

	m.cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "lifecycle_cycles_total",
		Help:      "Lifecycle cycles run, by horizon and outcome",
	}, []string{"horizon", "outcome"})

	m.cycleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "lifecycle_cycle_duration_seconds",
		Help:      "Wall time of one lifecycle cycle",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"horizon"})

	m.jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "retrain_jobs_total",
		Help:      "Retrain jobs by task, network and terminal status",
	}, []string{"task", "network", "status"})

	m.trainingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "training_duration_seconds",
		Help:      "Duration of training runs",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
	}, []string{"task", "network"})

	m.comparisonsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "shadow_comparisons_total",
		Help:      "Shadow comparisons by task and verdict",
	}, []string{"task", "verdict"})

	m.promotionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "promotions_total",
		Help:      "Model promotions by horizon and trigger",
	}, []string{"horizon", "triggered_by"})

	m.rollbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "rollbacks_total",
		Help:      "Rollbacks by horizon and trigger",
	}, []string{"horizon", "triggered_by"})

	m.guardBlocksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "guard_blocks_total",
		Help:      "Guard denials by horizon and first reason",
	}, []string{"horizon", "reason"})

	m.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "queue_depth",
		Help:      "Jobs currently pending or running, by status",
	}, []string{"status"})

	m.activeModelHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "active_model_health",
		Help:      "Health of the serving model: 0 healthy, 1 degraded, 2 critical",
	}, []string{"horizon"})

	m.auditDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "audit_entries_dropped_total",
		Help:      "Audit entries dropped because the write buffer was full",
	})

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "http_requests_total",
		Help:      "API requests by method, route and status code",
	}, []string{"method", "route", "code"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "http_request_duration_seconds",
		Help:      "API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	collectors := []prometheus.Collector{
		m.cyclesTotal, m.cycleDuration, m.jobsTotal, m.trainingDuration,
		m.comparisonsTotal, m.promotionsTotal, m.rollbacksTotal,
		m.guardBlocksTotal, m.queueDepth, m.activeModelHealth,
		m.auditDropsTotal, m.httpRequestsTotal, m.httpDuration,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Start serves the metrics endpoint until Stop is called.
func (m *LifecycleMetrics) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("Metrics endpoint disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.config.Port),
		Handler: mux,
	}

	m.logger.WithFields(logrus.Fields{
		"port": m.config.Port,
		"path": m.config.Path,
	}).Info("Starting metrics server")

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.WithError(err).Error("Metrics server failed")
		}
	}()

	return nil
}

// Stop shuts the metrics server down.
func (m *LifecycleMetrics) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Handler exposes the registry for embedding in another mux.
func (m *LifecycleMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCycle observes one completed cycle.
func (m *LifecycleMetrics) RecordCycle(horizon models.Horizon, outcome string, duration time.Duration) {
	m.cyclesTotal.WithLabelValues(string(horizon), outcome).Inc()
	m.cycleDuration.WithLabelValues(string(horizon)).Observe(duration.Seconds())
}

// RecordJob counts a job reaching a terminal status.
func (m *LifecycleMetrics) RecordJob(task models.Task, network string, status models.JobStatus) {
	m.jobsTotal.WithLabelValues(string(task), network, string(status)).Inc()
}

// RecordTraining observes a training run duration.
func (m *LifecycleMetrics) RecordTraining(task models.Task, network string, duration time.Duration) {
	m.trainingDuration.WithLabelValues(string(task), network).Observe(duration.Seconds())
}

// RecordComparison counts a shadow comparison verdict.
func (m *LifecycleMetrics) RecordComparison(task models.Task, verdict models.VerdictStatus) {
	m.comparisonsTotal.WithLabelValues(string(task), string(verdict)).Inc()
}

// RecordPromotion counts a successful promotion.
func (m *LifecycleMetrics) RecordPromotion(horizon models.Horizon, trigger models.TriggeredBy) {
	m.promotionsTotal.WithLabelValues(string(horizon), string(trigger)).Inc()
}

// RecordRollback counts a rollback.
func (m *LifecycleMetrics) RecordRollback(horizon models.Horizon, trigger models.TriggeredBy) {
	m.rollbacksTotal.WithLabelValues(string(horizon), string(trigger)).Inc()
}

// RecordGuardBlock counts a guard denial under its leading reason.
func (m *LifecycleMetrics) RecordGuardBlock(horizon models.Horizon, reason string) {
	m.guardBlocksTotal.WithLabelValues(string(horizon), reason).Inc()
}

// SetQueueDepth updates the depth gauge for a status.
func (m *LifecycleMetrics) SetQueueDepth(status models.JobStatus, depth int) {
	m.queueDepth.WithLabelValues(string(status)).Set(float64(depth))
}

// SetModelHealth updates the serving-model health gauge.
func (m *LifecycleMetrics) SetModelHealth(horizon models.Horizon, status models.HealthStatus) {
	var v float64
	switch status {
	case models.HealthDegraded:
		v = 1
	case models.HealthCritical:
		v = 2
	}
	m.activeModelHealth.WithLabelValues(string(horizon)).Set(v)
}

// RecordAuditDrop counts a dropped audit entry.
func (m *LifecycleMetrics) RecordAuditDrop() {
	m.auditDropsTotal.Inc()
}

// RecordHTTPRequest observes one API request.
func (m *LifecycleMetrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, fmt.Sprintf("%d", code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
