// Package report writes simulator results.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/webriots/ioq/internal/sim"
)

// Formats lists the supported output formats.
var Formats = []string{"text", "json", "yaml", "msgpack"}

// Write encodes res to w in the given format.
func Write(w io.Writer, format string, res *sim.Result) error {
	switch format {
	case "", "text":
		return writeText(w, res)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	case "msgpack":
		return msgpack.NewEncoder(w).Encode(res)
	}
	return fmt.Errorf("unknown report format %q", format)
}

// WriteFile writes the report to path, or to stdout when path is
// empty.
func WriteFile(path, format string, res *sim.Result) error {
	if path == "" {
		return Write(os.Stdout, format, res)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, format, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeText(w io.Writer, res *sim.Result) error {
	fmt.Fprintf(w, "Run:        %s\n", res.RunID)
	fmt.Fprintf(w, "  Elapsed:  %dms\n", res.ElapsedMS)
	fmt.Fprintf(w, "  Workers:  %d\n", res.Workers)
	fmt.Fprintf(w, "  Released: %d/%d\n", res.Released, res.Ops)
	if res.Violations > 0 {
		fmt.Fprintf(w, "  Violations: %d\n", res.Violations)
	}
	if res.Interrupted {
		fmt.Fprintln(w, "  Interrupted")
	}
	if res.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", res.Error)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "STREAM\tPRI\tOPS\tDONE\tFAILED\tCANCELED\tMEAN(us)\tMAX(us)\t")
	for _, st := range res.Streams {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			st.ID, st.Priority, st.Ops, st.Completed, st.Failed, st.Canceled,
			st.MeanLatencyUS, st.MaxLatencyUS)
	}
	return tw.Flush()
}
