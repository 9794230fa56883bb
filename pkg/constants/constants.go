package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "modelgov-server"
	AppDescription = "Model Lifecycle Governance Service"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Default configuration values
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Lifecycle cycle defaults
	DefaultCycleInterval   = 6 * time.Hour
	DefaultTrainingTimeout = 30 * time.Minute
	DefaultGuardCooldown   = 12 * time.Hour

	// Shadow comparator defaults (rules version v1)
	ComparatorRulesVersion      = "v1"
	DefaultMinComparisonRows    = 50
	DefaultPassMinF1Delta       = 0.01
	DefaultPassMinAccuracyDelta = 0.0
	DefaultFailMaxF1Delta       = -0.03
	DefaultFailMaxAccuracyDelta = -0.03
	MetricDeltaPrecision        = 4 // decimal places

	// Evaluation policy defaults
	DefaultMaxPrecisionDrop        = 0.02
	DefaultMaxFPRIncrease          = 0.02
	DefaultMaxECEIncrease          = 0.02
	DefaultMinPrecisionImprovement = 0.02
	DefaultMinLiftImprovement      = 0.05
	DefaultStabilityThreshold      = 50

	// Guard defaults
	DefaultMinSampleCount          = 100
	DefaultMaxDriftSeverity        = 0.25
	DefaultMinLiveShare            = 0.6
	DefaultMaxIngestionBacklog     = 10000
	DefaultCriticalWindowLimit     = 3
	DefaultHealthCheckInterval     = 5 * time.Minute

	// Audit defaults
	DefaultAuditBufferSize  = 1024
	DefaultAuditRecentLimit = 100

	// Storage defaults
	DefaultStorageTimeout    = 30 * time.Second
	DefaultMaxConnections    = 25
	DefaultConnectionTimeout = 10 * time.Second

	// Pagination defaults
	DefaultPageSize = 100
	MaxPageSize     = 1000

	// HTTP headers and content types
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
	ContentTypeJSON   = "application/json"
)

// DefaultNetworks lists the blockchain networks classifiers are trained per.
var DefaultNetworks = []string{"ethereum", "solana", "base"}
