package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/webriots/ioq/internal/sim"
)

func sample() *sim.Result {
	return &sim.Result{
		RunID:     "5c0d8a4e-5b7a-4d8e-9a55-3f1d2c6b7e10",
		Started:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ElapsedMS: 42,
		Workers:   4,
		Ops:       30,
		Released:  30,
		Streams: []sim.StreamResult{
			{ID: 1, Priority: 31, Ops: 20, Completed: 19, Failed: 1, MeanLatencyUS: 80, MaxLatencyUS: 300},
			{ID: 9, Priority: 0, Ops: 10, Completed: 10, MeanLatencyUS: 900, MaxLatencyUS: 2000},
		},
	}
}

func TestText(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	r.NoError(Write(&buf, "text", sample()))
	out := buf.String()
	r.Contains(out, "Released: 30/30")
	r.Contains(out, "STREAM")
	r.Contains(out, "2000")
	r.NotContains(out, "Error")
}

func TestStructuredFormats(t *testing.T) {
	r := require.New(t)
	res := sample()

	var buf bytes.Buffer
	r.NoError(Write(&buf, "json", res))
	var fromJSON map[string]any
	r.NoError(json.Unmarshal(buf.Bytes(), &fromJSON))
	r.Equal(res.RunID, fromJSON["run_id"])
	r.NotContains(fromJSON, "error")

	buf.Reset()
	r.NoError(Write(&buf, "yaml", res))
	var fromYAML sim.Result
	r.NoError(yaml.Unmarshal(buf.Bytes(), &fromYAML))
	r.Equal(res.Streams, fromYAML.Streams)

	buf.Reset()
	r.NoError(Write(&buf, "msgpack", res))
	var fromMsgpack sim.Result
	r.NoError(msgpack.Unmarshal(buf.Bytes(), &fromMsgpack))
	r.Equal(res.Streams, fromMsgpack.Streams)
	r.True(res.Started.Equal(fromMsgpack.Started))

	r.Error(Write(&buf, "xml", res))
}

func TestWriteFile(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "report.json")
	r.NoError(WriteFile(path, "json", sample()))
	data, err := os.ReadFile(path)
	r.NoError(err)
	r.Contains(string(data), `"workers": 4`)
}
