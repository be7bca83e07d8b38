// Writer implementation printing snapshots to STDOUT
package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"astraguard-sim/internal/metrics"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

// StdoutWriter prints snapshots to STDOUT: colourised KPI lines on a
// terminal, one JSON document per snapshot otherwise.
type StdoutWriter struct {
	out      io.Writer
	colorize bool
	once     sync.Once
}

// NewStdoutWriter creates a StdoutWriter that colourises only when STDOUT is a terminal.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout, colorize: term.IsTerminal(int(os.Stdout.Fd()))}
}

// Write outputs a single snapshot.
func (w *StdoutWriter) Write(row metrics.SnapshotRow) error {
	if !w.colorize {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}
	// Breakers never drift, so the matrix is printed once.
	w.once.Do(func() { w.printBreakers(row.Breakers) })

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s %srev=%d%s", colorGray, row.Timestamp.Format(time.RFC3339), colorReset, colorBlue, row.Revision, colorReset)
	for _, k := range row.KPIs {
		fmt.Fprintf(&b, " %s%s=%s%s %s", colorCyan, k.ID, k.Value, colorReset, trendArrow(k.Trend))
	}
	_, err := fmt.Fprintln(w.out, b.String())
	return err
}

// WriteBatch outputs multiple snapshots.
func (w *StdoutWriter) WriteBatch(rows []metrics.SnapshotRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func (w *StdoutWriter) printBreakers(breakers []metrics.Breaker) {
	if len(breakers) == 0 {
		return
	}
	fmt.Fprintln(w.out, "Circuit Breakers:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  FROM\tTO\tSTATE\tFOR\tREASON")
	for _, br := range breakers {
		fmt.Fprintf(tw, "  %s\t%s\t%s%s%s\t%s\t%s\n", br.Source, br.Destination, stateColor(br.State), br.State, colorReset, br.Duration, br.Reason)
	}
	tw.Flush()
}

func trendArrow(trend float64) string {
	switch {
	case trend > 0:
		return fmt.Sprintf("%s▲%.2f%s", colorGreen, trend, colorReset)
	case trend < 0:
		return fmt.Sprintf("%s▼%.2f%s", colorRed, -trend, colorReset)
	default:
		return fmt.Sprintf("%s■0.00%s", colorGray, colorReset)
	}
}

func stateColor(s metrics.BreakerState) string {
	switch s {
	case metrics.BreakerOpen:
		return colorGreen
	case metrics.BreakerHalf:
		return colorYellow
	case metrics.BreakerTripped:
		return colorRed
	default:
		return colorGray
	}
}
