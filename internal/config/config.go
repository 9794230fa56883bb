package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alphaintel/modelgov/pkg/constants"
)

// AppConfig is the full configuration for the server and worker
// processes. Values come from the config file, MODELGOV_* environment
// variables, then defaults, in that order.
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`

	Training  TrainingConfig  `mapstructure:"training"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// StorageConfig selects and configures the durable backend.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"` // memory, postgres
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds shared Postgres connection settings.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds the switch-store connection settings. An empty Addr
// selects the in-memory switch store.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TrainingConfig points at the training executor.
type TrainingConfig struct {
	Endpoint string        `mapstructure:"endpoint"` // empty selects the simulated executor
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DatasetConfig points at the dataset-export service.
type DatasetConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ArtifactsConfig selects the model artifact store.
type ArtifactsConfig struct {
	Backend  string `mapstructure:"backend"` // local, s3
	Path     string `mapstructure:"path"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`
	S3Prefix string `mapstructure:"s3_prefix"`
}

// LifecycleConfig holds the cycle schedule and threshold overrides.
type LifecycleConfig struct {
	CycleInterval       time.Duration `mapstructure:"cycle_interval"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	Networks            []string      `mapstructure:"networks"`
	GuardCooldown       time.Duration `mapstructure:"guard_cooldown"`
	SignalsEndpoint     string        `mapstructure:"signals_endpoint"` // empty selects the static source
	AuditBufferSize     int           `mapstructure:"audit_buffer_size"`
}

// Load reads configuration from the given file (optional), environment,
// and defaults.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MODELGOV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", constants.DefaultLogLevel)
	v.SetDefault("log_format", constants.DefaultLogFormat)

	v.SetDefault("server.host", constants.DefaultHost)
	v.SetDefault("server.port", constants.DefaultPort)
	v.SetDefault("server.read_timeout", constants.DefaultReadTimeout)
	v.SetDefault("server.write_timeout", constants.DefaultWriteTimeout)
	v.SetDefault("server.idle_timeout", constants.DefaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", constants.DefaultShutdownTimeout)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", constants.DefaultMetricsPort)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "modelgov")
	v.SetDefault("storage.postgres.username", "modelgov")
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.postgres.connect_timeout", constants.DefaultConnectionTimeout)
	v.SetDefault("storage.postgres.max_connections", constants.DefaultMaxConnections)
	v.SetDefault("storage.postgres.max_idle_conns", 5)
	v.SetDefault("storage.postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.key_prefix", "modelgov")

	v.SetDefault("training.timeout", constants.DefaultTrainingTimeout)
	v.SetDefault("dataset.timeout", constants.DefaultStorageTimeout)

	v.SetDefault("artifacts.backend", "local")
	v.SetDefault("artifacts.path", "/var/lib/modelgov/artifacts")

	v.SetDefault("lifecycle.cycle_interval", constants.DefaultCycleInterval)
	v.SetDefault("lifecycle.health_check_interval", constants.DefaultHealthCheckInterval)
	v.SetDefault("lifecycle.networks", constants.DefaultNetworks)
	v.SetDefault("lifecycle.guard_cooldown", constants.DefaultGuardCooldown)
	v.SetDefault("lifecycle.audit_buffer_size", constants.DefaultAuditBufferSize)
}
