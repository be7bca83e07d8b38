package sim

import (
	"errors"
	"io"

	"astraguard-sim/internal/metrics"
)

// MultiWriter fan-outs snapshots to multiple writers. Every writer is tried;
// failures are joined.
type MultiWriter struct {
	writers []SnapshotWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...SnapshotWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Writers returns the underlying writers.
func (mw *MultiWriter) Writers() []SnapshotWriter {
	return mw.writers
}

// Write sends a snapshot to all writers.
func (mw *MultiWriter) Write(row metrics.SnapshotRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple snapshots to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []metrics.SnapshotRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that implements io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
