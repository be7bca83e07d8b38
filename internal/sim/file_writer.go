package sim

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"astraguard-sim/internal/metrics"
)

// FileWriter appends snapshots to a JSONL file that ReplayLogFile can read back.
type FileWriter struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// NewFileWriter creates (or truncates) the snapshot log at path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &FileWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write appends one snapshot and flushes it to disk.
func (w *FileWriter) Write(row metrics.SnapshotRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(row); err != nil {
		return err
	}
	return w.buf.Flush()
}

// WriteBatch appends several snapshots with a single flush.
func (w *FileWriter) WriteBatch(rows []metrics.SnapshotRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range rows {
		if err := w.enc.Encode(r); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
