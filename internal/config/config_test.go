package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ioq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	r := require.New(t)

	cfg, err := Load("")
	r.NoError(err)
	r.Equal(Default().Scheduler, cfg.Scheduler)
	r.Len(cfg.Workload.Streams, 3)
	r.Equal(6000, cfg.TotalOps())
	r.Equal("text", cfg.Report.Format)
}

func TestLoadFile(t *testing.T) {
	r := require.New(t)

	path := writeConfig(t, `
scheduler:
  workers: 2
  max_in_flight: 16
workload:
  seed: 42
  streams:
    - id: 7
      priority: 0
      ops: 10
      read_ratio: 1
executor:
  latency_us: 0
  async_ratio: 1
report:
  format: YAML
`)
	cfg, err := Load(path)
	r.NoError(err)
	r.Equal(2, cfg.Scheduler.Workers)
	r.Equal(16, cfg.Scheduler.MaxInFlight)
	r.Equal(32, cfg.Scheduler.StreamDepth)
	r.Equal(uint64(42), cfg.Workload.Seed)
	r.Equal([]StreamConfig{{ID: 7, Priority: 0, Ops: 10, ReadRatio: 1}}, cfg.Workload.Streams)
	r.Equal(1.0, cfg.Executor.AsyncRatio)
	r.Equal("yaml", cfg.Report.Format)
}

func TestLoadEnv(t *testing.T) {
	r := require.New(t)

	t.Setenv("IOQ_SCHEDULER_WORKERS", "6")
	t.Setenv("IOQ_LOG_LEVEL", "debug")
	cfg, err := Load("")
	r.NoError(err)
	r.Equal(6, cfg.Scheduler.Workers)
	r.Equal("debug", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	r := require.New(t)

	for name, body := range map[string]string{
		"priority":  "workload:\n  streams:\n    - {id: 1, priority: 32, ops: 1}\n",
		"duplicate": "workload:\n  streams:\n    - {id: 1, ops: 1}\n    - {id: 1, ops: 1}\n",
		"workers":   "scheduler:\n  workers: 0\n",
		"pool":      "scheduler:\n  workers: 9\n",
		"format":    "report:\n  format: xml\n",
		"ratio":     "executor:\n  failure_rate: 2\n",
		"level":     "log:\n  level: loud\n",
	} {
		_, err := Load(writeConfig(t, body))
		r.Error(err, name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	r.Error(err)
}
