package bootstrap

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/internal/config"
	"github.com/alphaintel/modelgov/internal/dataset"
	"github.com/alphaintel/modelgov/internal/lifecycle/audit"
	"github.com/alphaintel/modelgov/internal/lifecycle/guard"
	"github.com/alphaintel/modelgov/internal/lifecycle/orchestrator"
	"github.com/alphaintel/modelgov/internal/lifecycle/policy"
	"github.com/alphaintel/modelgov/internal/lifecycle/queue"
	"github.com/alphaintel/modelgov/internal/lifecycle/registry"
	"github.com/alphaintel/modelgov/internal/lifecycle/shadow"
	"github.com/alphaintel/modelgov/internal/lifecycle/state"
	"github.com/alphaintel/modelgov/internal/observability/health"
	"github.com/alphaintel/modelgov/internal/observability/metrics"
	"github.com/alphaintel/modelgov/internal/training"
	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/interfaces"
	"github.com/alphaintel/modelgov/pkg/models"
)

// Components holds every wired subsystem plus the resources to release
// on shutdown.
type Components struct {
	Queue        interfaces.Queue
	Registry     interfaces.Registry
	State        interfaces.StateStore
	Audit        *audit.Log
	Guard        *guard.Guard
	Switches     interfaces.SwitchStore
	Comparator   *shadow.Comparator
	Executor     training.Executor
	Dataset      dataset.Resolver
	Provider     orchestrator.EvaluationProvider
	Orchestrator *orchestrator.Orchestrator
	Health       *health.Checker
	Metrics      *metrics.LifecycleMetrics

	closers []io.Closer
}

// Build wires all subsystems from the loaded configuration. Postgres and
// Redis connections are established here so a misconfigured deployment
// fails at startup, not mid-cycle.
func Build(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (*Components, error) {
	c := &Components{}

	lm, err := metrics.NewLifecycleMetrics(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Port:      cfg.Metrics.Port,
		Path:      "/metrics",
		Namespace: "modelgov",
	}, logger)
	if err != nil {
		return nil, err
	}
	c.Metrics = lm

	if err := c.buildAudit(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := c.buildStorage(ctx, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.buildGuard(ctx, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.buildExternal(cfg, logger); err != nil {
		c.Close()
		return nil, err
	}

	c.Comparator = shadow.NewComparator(shadow.DefaultThresholds(), logger)
	c.buildHealth(logger)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.CycleInterval = cfg.Lifecycle.CycleInterval
	orchCfg.HealthCheckInterval = cfg.Lifecycle.HealthCheckInterval
	orchCfg.Policy = policy.Default()
	if len(cfg.Lifecycle.Networks) > 0 {
		orchCfg.Loops = loopsFor(cfg.Lifecycle.Networks)
	}

	c.Orchestrator = orchestrator.New(orchCfg, orchestrator.Deps{
		Queue:      c.Queue,
		Registry:   c.Registry,
		State:      c.State,
		Guard:      c.Guard,
		Comparator: c.Comparator,
		Executor:   c.Executor,
		Dataset:    c.Dataset,
		Provider:   c.Provider,
		Switches:   c.Switches,
		Audit:      c.Audit,
		Metrics:    c.Metrics,
	}, logger)

	return c, nil
}

func loopsFor(networks []string) []orchestrator.LoopSpec {
	var loops []orchestrator.LoopSpec
	for _, horizon := range []models.Horizon{models.Horizon7d, models.Horizon30d} {
		for _, task := range []models.Task{models.TaskMarketClassifier, models.TaskActorClassifier} {
			for _, network := range networks {
				loops = append(loops, orchestrator.LoopSpec{
					Horizon: horizon,
					Task:    task,
					Network: network,
				})
			}
		}
	}
	return loops
}

func (c *Components) buildAudit(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) error {
	var writer audit.Writer

	if cfg.Storage.Backend == "postgres" {
		pg := cfg.Storage.Postgres
		pw, err := audit.NewPostgresWriter(&audit.PostgresConfig{
			Host: pg.Host, Port: pg.Port, Database: pg.Database,
			Username: pg.Username, Password: pg.Password, SSLMode: pg.SSLMode,
			ConnectTimeout: pg.ConnectTimeout, MaxConnections: pg.MaxConnections,
			MaxIdleConns: pg.MaxIdleConns, ConnMaxLifetime: pg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return err
		}
		if err := pw.Connect(ctx); err != nil {
			return err
		}
		c.closers = append(c.closers, pw)
		writer = pw
	} else {
		writer = audit.NewMemoryWriter(constants.MaxPageSize * 10)
	}

	c.Audit = audit.NewLog(writer, &audit.LogConfig{
		BufferSize: cfg.Lifecycle.AuditBufferSize,
		DropHook:   c.Metrics.RecordAuditDrop,
	}, logger)
	return nil
}

func (c *Components) buildStorage(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) error {
	if cfg.Storage.Backend == "postgres" {
		pg := cfg.Storage.Postgres
		pq, err := queue.NewPostgresQueue(&queue.PostgresConfig{
			Host: pg.Host, Port: pg.Port, Database: pg.Database,
			Username: pg.Username, Password: pg.Password, SSLMode: pg.SSLMode,
			ConnectTimeout: pg.ConnectTimeout, MaxConnections: pg.MaxConnections,
			MaxIdleConns: pg.MaxIdleConns, ConnMaxLifetime: pg.ConnMaxLifetime,
		}, c.Audit, logger)
		if err != nil {
			return err
		}
		if err := pq.Connect(ctx); err != nil {
			return err
		}
		c.closers = append(c.closers, pq)
		c.Queue = pq

		ps, err := state.NewPostgresStore(&state.PostgresConfig{
			Host: pg.Host, Port: pg.Port, Database: pg.Database,
			Username: pg.Username, Password: pg.Password, SSLMode: pg.SSLMode,
			ConnectTimeout: pg.ConnectTimeout, MaxConnections: pg.MaxConnections,
			MaxIdleConns: pg.MaxIdleConns, ConnMaxLifetime: pg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return err
		}
		if err := ps.Connect(ctx); err != nil {
			return err
		}
		c.closers = append(c.closers, ps)
		c.State = ps
	} else {
		c.Queue = queue.NewMemoryQueue(c.Audit, logger)
		c.State = state.NewMemoryStore(logger)
	}

	regCfg := &registry.Config{
		StorageBackend: cfg.Artifacts.Backend,
		StoragePath:    cfg.Artifacts.Path,
		S3Bucket:       cfg.Artifacts.S3Bucket,
		S3Region:       cfg.Artifacts.S3Region,
		S3Prefix:       cfg.Artifacts.S3Prefix,
	}
	artifacts, err := registry.NewArtifactStore(regCfg, logger)
	if err != nil {
		return err
	}
	c.Registry = registry.NewModelRegistry(regCfg, artifacts, logger)
	return nil
}

func (c *Components) buildGuard(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) error {
	if cfg.Redis.Addr != "" {
		rs, err := guard.NewRedisSwitchStore(&guard.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			return err
		}
		if err := rs.Connect(ctx); err != nil {
			return err
		}
		c.closers = append(c.closers, rs)
		c.Switches = rs
	} else {
		c.Switches = guard.NewMemorySwitchStore()
	}

	var signals interfaces.SignalSource
	if cfg.Lifecycle.SignalsEndpoint != "" {
		signals = guard.NewHTTPSignalSource(cfg.Lifecycle.SignalsEndpoint, cfg.Dataset.Timeout)
	} else {
		signals = guard.NewStaticSignalSource()
	}

	guardCfg := guard.DefaultConfig()
	if cfg.Lifecycle.GuardCooldown > 0 {
		guardCfg.Cooldown = cfg.Lifecycle.GuardCooldown
	}
	c.Guard = guard.New(guardCfg, c.Switches, signals, logger)
	return nil
}

func (c *Components) buildExternal(cfg *config.AppConfig, logger *logrus.Logger) error {
	if cfg.Training.Endpoint != "" {
		exec, err := training.NewHTTPExecutor(training.Config{
			Endpoint: cfg.Training.Endpoint,
			Timeout:  cfg.Training.Timeout,
		}, logger)
		if err != nil {
			return err
		}
		c.Executor = exec
	} else {
		c.Executor = training.NewSimulatedExecutor(1)
	}

	if cfg.Dataset.Endpoint != "" {
		c.Dataset = dataset.NewHTTPResolver(cfg.Dataset.Endpoint, cfg.Dataset.Timeout)
	} else {
		c.Dataset = dataset.NewStaticResolver()
	}

	// Without a scoring pipeline the static provider keeps every
	// candidate in HOLD, never promoting on fabricated numbers.
	c.Provider = orchestrator.NewStaticProvider()
	return nil
}

// buildHealth registers readiness probes against the wired backends. The
// audit probe is non-critical: a slow ledger degrades the service but
// must not fail readiness and stop the kill switch from being reachable.
func (c *Components) buildHealth(logger *logrus.Logger) {
	c.Health = health.NewChecker(logger)
	c.Health.Register("state_store", true, func(ctx context.Context) error {
		_, err := c.State.GetAll(ctx)
		return err
	})
	c.Health.Register("retrain_queue", true, func(ctx context.Context) error {
		_, err := c.Queue.List(ctx, interfaces.JobFilter{Limit: 1})
		return err
	})
	c.Health.Register("switch_store", true, func(ctx context.Context) error {
		_, err := c.Switches.KillSwitchEnabled(ctx)
		return err
	})
	c.Health.Register("audit_log", false, func(ctx context.Context) error {
		_, err := c.Audit.Recent(ctx, 1, interfaces.AuditFilter{})
		return err
	})
}

// Close releases all held connections and flushes the audit sink.
func (c *Components) Close() {
	if c.Audit != nil {
		c.Audit.Close()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
}
