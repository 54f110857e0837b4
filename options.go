package ioq

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxPriority is the highest stream priority.
	MaxPriority = 31
	// DefaultPriority is the suggested priority for a stream.
	DefaultPriority = 8
	// MaxWorkers is the largest worker pool Serve accepts.
	MaxWorkers = 8

	// DefaultMaxInFlight bounds the number of ops held by the
	// scheduler between acquire and release.
	DefaultMaxInFlight = 128
	// DefaultStreamDepth bounds the ops a single stream may hold
	// before its acquire turns are skipped.
	DefaultStreamDepth = 32
	// DefaultAcquireBatch is the largest batch requested per acquire.
	DefaultAcquireBatch = 32
	// DefaultDrainTimeout bounds how long Shutdown waits for
	// outstanding ops.
	DefaultDrainTimeout = 30 * time.Second
)

// Config holds scheduler tuning.
type Config struct {
	MaxInFlight    int           // Admission bound across all streams
	StreamDepth    int           // Per-stream capacity used for acquire turns
	AcquireBatch   int           // Max ops requested per Acquire call
	DrainTimeout   time.Duration // Shutdown wait for outstanding ops
	StrictProtocol bool          // Escalate protocol violations to Fatal
	Logger         *zap.Logger
}

// DefaultConfig returns the configuration used when no options are
// given.
func DefaultConfig() Config {
	return Config{
		MaxInFlight:  DefaultMaxInFlight,
		StreamDepth:  DefaultStreamDepth,
		AcquireBatch: DefaultAcquireBatch,
		DrainTimeout: DefaultDrainTimeout,
		Logger:       zap.NewNop(),
	}
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.MaxInFlight < 1:
		return fmt.Errorf("ioq: max in-flight %d: %w", c.MaxInFlight, ErrInvalidArgument)
	case c.StreamDepth < 1:
		return fmt.Errorf("ioq: stream depth %d: %w", c.StreamDepth, ErrInvalidArgument)
	case c.AcquireBatch < 1:
		return fmt.Errorf("ioq: acquire batch %d: %w", c.AcquireBatch, ErrInvalidArgument)
	case c.DrainTimeout <= 0:
		return fmt.Errorf("ioq: drain timeout %v: %w", c.DrainTimeout, ErrInvalidArgument)
	}
	return nil
}

// Option configures a Scheduler.
type Option func(*Config)

// WithMaxInFlight sets the admission bound.
func WithMaxInFlight(n int) Option {
	return func(c *Config) { c.MaxInFlight = n }
}

// WithStreamDepth sets the per-stream capacity.
func WithStreamDepth(n int) Option {
	return func(c *Config) { c.StreamDepth = n }
}

// WithAcquireBatch sets the largest batch requested from the source.
func WithAcquireBatch(n int) Option {
	return func(c *Config) { c.AcquireBatch = n }
}

// WithDrainTimeout sets how long Shutdown waits for outstanding ops
// and exiting workers before reporting ErrDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Config) { c.DrainTimeout = d }
}

// WithStrictProtocol makes protocol violations fatal.
func WithStrictProtocol(strict bool) Option {
	return func(c *Config) { c.StrictProtocol = strict }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l == nil {
			l = zap.NewNop()
		}
		c.Logger = l
	}
}
