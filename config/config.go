// Package config loads buffer settings from YAML and turns them into backing
// storage and CircularBuffer options.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	cb "github.com/sushydev/circular_buffer_go"
	"github.com/sushydev/circular_buffer_go/lock"
	"github.com/sushydev/circular_buffer_go/storage"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Storage kinds.
const (
	StorageHeap = "heap"
	StorageMmap = "mmap"
)

// Lock kinds.
const (
	LockNone      = "none"
	LockMutex     = "mutex"
	LockSpin      = "spin"
	LockSemaphore = "semaphore"
)

// Config is the file layout.
type Config struct {
	Name     string         `yaml:"name"`
	Capacity int            `yaml:"capacity"`
	Storage  string         `yaml:"storage"`
	Lock     LockConfig     `yaml:"lock"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Producer ProducerConfig `yaml:"producer"`
}

// LockConfig selects the lock provider and what happens when it fails.
type LockConfig struct {
	Kind      string        `yaml:"kind"`
	Timeout   time.Duration `yaml:"timeout"`
	OnFailure string        `yaml:"on_failure"`
}

// LogConfig sets the zerolog level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig enables Prometheus collectors and the /metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ProducerConfig drives the demo producer that stands in for an interrupt
// handler.
type ProducerConfig struct {
	FrameSize int           `yaml:"frame_size"`
	Interval  time.Duration `yaml:"interval"`
	Frames    int           `yaml:"frames"`
}

// Default returns a working configuration.
func Default() *Config {
	return &Config{
		Name:     "ringdemo",
		Capacity: 4096,
		Storage:  StorageHeap,
		Lock: LockConfig{
			Kind:      LockMutex,
			Timeout:   10 * time.Millisecond,
			OnFailure: cb.LockFailAbort.String(),
		},
		Log: LogConfig{
			Level: zerolog.InfoLevel.String(),
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Producer: ProducerConfig{
			FrameSize: 64,
			Interval:  time.Millisecond,
			Frames:    1000,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(raw)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	var errs []error

	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be positive, got %d", c.Capacity))
	}

	switch c.Storage {
	case StorageHeap, StorageMmap:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}

	switch c.Lock.Kind {
	case LockNone, LockMutex, LockSpin, LockSemaphore:
	default:
		errs = append(errs, fmt.Errorf("unknown lock kind %q", c.Lock.Kind))
	}

	if _, err := c.FailurePolicy(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	// Frames open with a 4-byte sequence number.
	if c.Producer.FrameSize < 4 || c.Producer.FrameSize > c.Capacity {
		errs = append(errs, fmt.Errorf("producer frame_size must be in [4, capacity], got %d", c.Producer.FrameSize))
	}

	if c.Producer.Interval < 0 {
		errs = append(errs, fmt.Errorf("producer interval must not be negative, got %s", c.Producer.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// FailurePolicy parses lock.on_failure. An empty value means abort.
func (c *Config) FailurePolicy() (cb.LockFailurePolicy, error) {
	switch strings.ToLower(c.Lock.OnFailure) {
	case "", cb.LockFailAbort.String():
		return cb.LockFailAbort, nil
	case cb.LockFailIgnore.String():
		return cb.LockFailIgnore, nil
	default:
		return cb.LockFailAbort, fmt.Errorf("unknown lock on_failure %q", c.Lock.OnFailure)
	}
}

// LogLevel parses log.level. An empty value means info.
func (c *Config) LogLevel() (zerolog.Level, error) {
	if c.Log.Level == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(c.Log.Level))
}

// LockProvider builds the provider for lock.kind. LockNone yields an empty
// provider, which leaves the buffer unsynchronized.
func (c *Config) LockProvider() (cb.LockProvider, error) {
	switch c.Lock.Kind {
	case LockNone:
		return cb.LockProvider{}, nil
	case LockMutex:
		return lock.Mutex(), nil
	case LockSpin:
		return lock.Spin(), nil
	case LockSemaphore:
		return lock.Semaphore(c.Lock.Timeout), nil
	default:
		return cb.LockProvider{}, fmt.Errorf("%w: unknown lock kind %q", ErrInvalidConfig, c.Lock.Kind)
	}
}

// AllocateStorage returns a region of Capacity bytes of the configured kind.
func (c *Config) AllocateStorage() (*storage.Region, error) {
	switch c.Storage {
	case StorageMmap:
		return storage.Allocate(c.Capacity)
	case StorageHeap:
		return storage.Heap(c.Capacity)
	default:
		return nil, fmt.Errorf("%w: unknown storage %q", ErrInvalidConfig, c.Storage)
	}
}

// Options translates the configuration into buffer options. registerer is
// only used when metrics are enabled.
func (c *Config) Options(logger zerolog.Logger, registerer prometheus.Registerer) ([]cb.Option, error) {
	locks, err := c.LockProvider()
	if err != nil {
		return nil, err
	}

	policy, err := c.FailurePolicy()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	opts := []cb.Option{
		cb.WithName(c.Name),
		cb.WithLock(locks),
		cb.WithLockFailurePolicy(policy),
		cb.WithLogger(logger),
	}

	if c.Metrics.Enabled {
		opts = append(opts, cb.WithMetrics(registerer))
	}

	return opts, nil
}
