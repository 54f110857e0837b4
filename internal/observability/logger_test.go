package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webriots/ioq/internal/config"
)

func TestSetupLoggerFile(t *testing.T) {
	for _, rotate := range []bool{false, true} {
		r := require.New(t)

		path := filepath.Join(t.TempDir(), "logs", "ioq.log")
		log, err := SetupLogger(config.LogConfig{
			Level:    "warning",
			Format:   "json",
			Outputs:  []string{path},
			Rotation: config.RotationConfig{Enable: rotate},
		})
		r.NoError(err)

		log.Info("dropped")
		log.Warn("kept")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		r.NoError(err)
		r.Contains(string(data), `"msg":"kept"`)
		r.NotContains(string(data), "dropped")
	}
}

func TestSetupLoggerBadLevel(t *testing.T) {
	_, err := SetupLogger(config.LogConfig{Level: "loud", Outputs: []string{"stderr"}})
	require.Error(t, err)
}
