package circular_buffer_go

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures a buffer at Initialize time.
type Option func(*bufferOptions)

type bufferOptions struct {
	name       string
	locks      LockProvider
	policy     LockFailurePolicy
	logger     zerolog.Logger
	registerer prometheus.Registerer
}

// WithName sets the name used in log fields and as the "buffer" metric label.
// Without it a random UUID is used.
func WithName(name string) Option {
	return func(opts *bufferOptions) {
		if name != "" {
			opts.name = name
		}
	}
}

// WithLock installs the lock callbacks.
func WithLock(locks LockProvider) Option {
	return func(opts *bufferOptions) {
		opts.locks = locks
	}
}

// WithLockFailurePolicy chooses how Init and Acquire failures are handled.
// Defaults to LockFailAbort.
func WithLockFailurePolicy(policy LockFailurePolicy) Option {
	return func(opts *bufferOptions) {
		opts.policy = policy
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(opts *bufferOptions) {
		opts.logger = logger
	}
}

// WithMetrics exports buffer activity as Prometheus metrics registered on
// registerer. A nil registerer is ignored.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(opts *bufferOptions) {
		if registerer != nil {
			opts.registerer = registerer
		}
	}
}

func applyOptions(options ...Option) *bufferOptions {
	opts := &bufferOptions{
		policy: LockFailAbort,
		logger: zerolog.Nop(),
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	if opts.name == "" {
		opts.name = uuid.NewString()
	}

	return opts
}
