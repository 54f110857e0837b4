// Package config provides YAML-based configuration loading for ioq-sim.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root simulator configuration.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Workload  WorkloadConfig  `mapstructure:"workload" yaml:"workload"`
	Executor  ExecutorConfig  `mapstructure:"executor" yaml:"executor"`
	Stats     StatsConfig     `mapstructure:"stats" yaml:"stats"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// SchedulerConfig mirrors the scheduler options.
type SchedulerConfig struct {
	Workers        int  `mapstructure:"workers" yaml:"workers"`
	MaxInFlight    int  `mapstructure:"max_in_flight" yaml:"max_in_flight"`
	StreamDepth    int  `mapstructure:"stream_depth" yaml:"stream_depth"`
	AcquireBatch   int  `mapstructure:"acquire_batch" yaml:"acquire_batch"`
	DrainTimeoutMS int  `mapstructure:"drain_timeout_ms" yaml:"drain_timeout_ms"`
	StrictProtocol bool `mapstructure:"strict_protocol" yaml:"strict_protocol"`
}

// WorkloadConfig describes the ops fed to the scheduler.
type WorkloadConfig struct {
	// Seed makes op kinds, latencies and failures reproducible
	Seed    uint64         `mapstructure:"seed" yaml:"seed"`
	Streams []StreamConfig `mapstructure:"streams" yaml:"streams"`
}

// StreamConfig is one simulated stream.
type StreamConfig struct {
	ID       uint32 `mapstructure:"id" yaml:"id"`
	Priority uint32 `mapstructure:"priority" yaml:"priority"`
	Ops      int    `mapstructure:"ops" yaml:"ops"`
	// ReadRatio is the share of reads; the rest are writes
	ReadRatio float64 `mapstructure:"read_ratio" yaml:"read_ratio"`
}

// ExecutorConfig shapes the simulated device.
type ExecutorConfig struct {
	LatencyUS   int     `mapstructure:"latency_us" yaml:"latency_us"`
	JitterUS    int     `mapstructure:"jitter_us" yaml:"jitter_us"`
	AsyncRatio  float64 `mapstructure:"async_ratio" yaml:"async_ratio"`
	FailureRate float64 `mapstructure:"failure_rate" yaml:"failure_rate"`
}

// StatsConfig controls the live stats endpoint. An empty Listen
// disables it.
type StatsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// ReportConfig selects how the run summary is written.
type ReportConfig struct {
	// Format: text, json, yaml or msgpack
	Format string `mapstructure:"format" yaml:"format"`
	// Output is a file path; empty means stdout
	Output string `mapstructure:"output" yaml:"output"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs" yaml:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable" yaml:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config populated with a small two-stream workload.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Workers:        4,
			MaxInFlight:    128,
			StreamDepth:    32,
			AcquireBatch:   32,
			DrainTimeoutMS: 30000,
		},
		Workload: WorkloadConfig{
			Seed: 1,
			Streams: []StreamConfig{
				{ID: 1, Priority: 31, Ops: 2000, ReadRatio: 0.7},
				{ID: 2, Priority: 8, Ops: 2000, ReadRatio: 0.5},
				{ID: 3, Priority: 1, Ops: 2000, ReadRatio: 0.2},
			},
		},
		Executor: ExecutorConfig{
			LatencyUS:  50,
			JitterUS:   25,
			AsyncRatio: 0.5,
		},
		Report: ReportConfig{Format: "text"},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// Load reads configuration from path (if non-empty) and applies
// environment overrides. Environment variables use the prefix IOQ and
// `.` is replaced with `_`, e.g. IOQ_SCHEDULER_WORKERS=8.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("IOQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("scheduler.workers", cfg.Scheduler.Workers)
	v.SetDefault("scheduler.max_in_flight", cfg.Scheduler.MaxInFlight)
	v.SetDefault("scheduler.stream_depth", cfg.Scheduler.StreamDepth)
	v.SetDefault("scheduler.acquire_batch", cfg.Scheduler.AcquireBatch)
	v.SetDefault("scheduler.drain_timeout_ms", cfg.Scheduler.DrainTimeoutMS)
	v.SetDefault("scheduler.strict_protocol", cfg.Scheduler.StrictProtocol)
	v.SetDefault("workload.seed", cfg.Workload.Seed)
	v.SetDefault("workload.streams", cfg.Workload.Streams)
	v.SetDefault("executor.latency_us", cfg.Executor.LatencyUS)
	v.SetDefault("executor.jitter_us", cfg.Executor.JitterUS)
	v.SetDefault("executor.async_ratio", cfg.Executor.AsyncRatio)
	v.SetDefault("executor.failure_rate", cfg.Executor.FailureRate)
	v.SetDefault("stats.listen", cfg.Stats.Listen)
	v.SetDefault("report.format", cfg.Report.Format)
	v.SetDefault("report.output", cfg.Report.Output)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv("IOQ_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills empty optional fields.
func (c *Config) Validate() error {
	s := c.Scheduler
	switch {
	case s.Workers < 1 || s.Workers > 8:
		return fmt.Errorf("invalid scheduler.workers: %d", s.Workers)
	case s.MaxInFlight < 1:
		return fmt.Errorf("invalid scheduler.max_in_flight: %d", s.MaxInFlight)
	case s.StreamDepth < 1:
		return fmt.Errorf("invalid scheduler.stream_depth: %d", s.StreamDepth)
	case s.AcquireBatch < 1:
		return fmt.Errorf("invalid scheduler.acquire_batch: %d", s.AcquireBatch)
	case s.DrainTimeoutMS < 1:
		return fmt.Errorf("invalid scheduler.drain_timeout_ms: %d", s.DrainTimeoutMS)
	}

	if len(c.Workload.Streams) == 0 {
		return errors.New("workload.streams is empty")
	}
	seen := make(map[uint32]bool, len(c.Workload.Streams))
	for i, st := range c.Workload.Streams {
		switch {
		case seen[st.ID]:
			return fmt.Errorf("duplicate workload.streams[%d].id: %d", i, st.ID)
		case st.Priority > 31:
			return fmt.Errorf("invalid workload.streams[%d].priority: %d", i, st.Priority)
		case st.Ops < 0:
			return fmt.Errorf("invalid workload.streams[%d].ops: %d", i, st.Ops)
		case st.ReadRatio < 0 || st.ReadRatio > 1:
			return fmt.Errorf("invalid workload.streams[%d].read_ratio: %v", i, st.ReadRatio)
		}
		seen[st.ID] = true
	}

	e := c.Executor
	switch {
	case e.LatencyUS < 0 || e.JitterUS < 0:
		return fmt.Errorf("invalid executor latency: %dus +/- %dus", e.LatencyUS, e.JitterUS)
	case e.AsyncRatio < 0 || e.AsyncRatio > 1:
		return fmt.Errorf("invalid executor.async_ratio: %v", e.AsyncRatio)
	case e.FailureRate < 0 || e.FailureRate > 1:
		return fmt.Errorf("invalid executor.failure_rate: %v", e.FailureRate)
	}

	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	switch c.Report.Format {
	case "":
		c.Report.Format = "text"
	case "text", "json", "yaml", "msgpack":
	default:
		return fmt.Errorf("invalid report.format: %q", c.Report.Format)
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	return nil
}

// TotalOps returns the number of ops in the workload.
func (c *Config) TotalOps() int {
	n := 0
	for _, st := range c.Workload.Streams {
		n += st.Ops
	}
	return n
}
