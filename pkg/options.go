package keystore

// options.go defines the functional options passed to New: a private
// config struct filled with sane defaults, mutated by an ordered list of
// Option values, then validated.
//
// © 2025 e2ee-keystore authors. MIT License.

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Keystore at construction time.
type Option func(*config)

type config struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	id       string
	salt     []byte
}

func defaultConfig() *config {
	return &config{
		logger: zap.NewNop(),
	}
}

// WithLogger plugs an external zap.Logger. Routine admission, rotation and
// reset events are logged at Debug; HKDF derivation failures
// (FATAL_INTERNAL) are logged at Warn/Error, and an admission that
// truncates the head-side tail is logged at Warn.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// WithID labels this keystore's metrics and log lines (typically a call
// ID). Defaults to an opaque per-instance identifier if unset.
func WithID(id string) Option {
	return func(c *config) {
		c.id = id
	}
}

// WithInitialSalt sets the HKDF salt at construction time, equivalent to
// calling SetSalt immediately after New.
func WithInitialSalt(salt []byte) Option {
	return func(c *config) {
		c.salt = append(make([]byte, 0, len(salt)), salt...)
	}
}

func applyOptions(cfg *config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.salt != nil && len(cfg.salt) == 0 {
		return errInvalidSalt
	}
	return nil
}

var errInvalidSalt = errors.New("keystore: initial salt must not be empty")
