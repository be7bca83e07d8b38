package sim

import (
	"encoding/json"
	"io"
	"os"

	"astraguard-sim/internal/metrics"
)

// JSONStdoutWriter prints every snapshot as a JSON line, regardless of TTY.
type JSONStdoutWriter struct {
	enc *json.Encoder
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return newJSONWriter(os.Stdout)
}

func newJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{enc: json.NewEncoder(out)}
}

// Write outputs a snapshot in JSON format.
func (w *JSONStdoutWriter) Write(row metrics.SnapshotRow) error {
	return w.enc.Encode(row)
}

// WriteBatch outputs multiple snapshots in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []metrics.SnapshotRow) error {
	for _, r := range rows {
		if err := w.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
