package guard

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/pkg/errors"
	"github.com/alphaintel/modelgov/pkg/models"
)

// RedisConfig holds connection settings for the shared switch store.
type RedisConfig struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	PoolSize     int           `json:"pool_size"`
	KeyPrefix    string        `json:"key_prefix"`
}

// RedisSwitchStore shares the kill switch and cooldown stamps across all
// worker and server processes.
type RedisSwitchStore struct {
	config *RedisConfig
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisSwitchStore creates a Redis-backed switch store.
func NewRedisSwitchStore(config *RedisConfig, logger *logrus.Logger) (*RedisSwitchStore, error) {
	if config == nil || config.Addr == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Redis address is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "modelgov"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisSwitchStore{config: config, logger: logger}, nil
}

// Connect establishes the Redis connection.
func (s *RedisSwitchStore) Connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         s.config.Addr,
		Password:     s.config.Password,
		DB:           s.config.DB,
		DialTimeout:  s.config.DialTimeout,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		PoolSize:     s.config.PoolSize,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to connect to Redis")
	}

	s.client = client

	s.logger.WithField("addr", s.config.Addr).Info("Connected to Redis switch store")
	return nil
}

// Close releases the Redis connection.
func (s *RedisSwitchStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *RedisSwitchStore) killKey() string {
	return s.config.KeyPrefix + ":killswitch"
}

func (s *RedisSwitchStore) attemptKey(horizon models.Horizon) string {
	return s.config.KeyPrefix + ":lastattempt:" + string(horizon)
}

// KillSwitchEnabled reports whether the operator has disabled automation.
// A missing key means off.
func (s *RedisSwitchStore) KillSwitchEnabled(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, s.killKey()).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read kill switch")
	}
	return val == "1", nil
}

// SetKillSwitch flips the operator kill switch.
func (s *RedisSwitchStore) SetKillSwitch(ctx context.Context, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	if err := s.client.Set(ctx, s.killKey(), val, 0).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to set kill switch")
	}

	s.logger.WithField("enabled", enabled).Warn("Kill switch changed")
	return nil
}

// LastAttempt returns the last recorded retrain/promotion attempt for the
// horizon, zero time when none exists.
func (s *RedisSwitchStore) LastAttempt(ctx context.Context, horizon models.Horizon) (time.Time, error) {
	val, err := s.client.Get(ctx, s.attemptKey(horizon)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read last attempt")
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Malformed last attempt timestamp")
	}
	return t, nil
}

// RecordAttempt stamps the cooldown clock for the horizon.
func (s *RedisSwitchStore) RecordAttempt(ctx context.Context, horizon models.Horizon, at time.Time) error {
	if err := s.client.Set(ctx, s.attemptKey(horizon), at.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to record attempt")
	}
	return nil
}

// MemorySwitchStore is the in-process switch store for tests and
// single-node development.
type MemorySwitchStore struct {
	mu       sync.RWMutex
	enabled  bool
	attempts map[models.Horizon]time.Time
}

// NewMemorySwitchStore creates a switch store with the kill switch off.
func NewMemorySwitchStore() *MemorySwitchStore {
	return &MemorySwitchStore{attempts: make(map[models.Horizon]time.Time)}
}

// KillSwitchEnabled reports the flag.
func (s *MemorySwitchStore) KillSwitchEnabled(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled, nil
}

// SetKillSwitch flips the flag.
func (s *MemorySwitchStore) SetKillSwitch(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	return nil
}

// LastAttempt returns the stamp for the horizon, zero when absent.
func (s *MemorySwitchStore) LastAttempt(ctx context.Context, horizon models.Horizon) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts[horizon], nil
}

// RecordAttempt stamps the horizon.
func (s *MemorySwitchStore) RecordAttempt(ctx context.Context, horizon models.Horizon, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[horizon] = at
	return nil
}
