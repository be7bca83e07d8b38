package sim

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"astraguard-sim/internal/metrics"
)

const replayBatchSize = 100

// ReplayLog replays snapshot rows from r to writer. A speed >0 scales the
// recorded gaps between rows. If speed <= 0, no artificial delay is inserted
// and batch-capable writers receive rows in batches.
func ReplayLog(r io.Reader, writer SnapshotWriter, speed float64) error {
	dec := json.NewDecoder(r)
	if speed <= 0 {
		if bw, ok := writer.(batchWriter); ok {
			return replayBatched(dec, bw)
		}
	}
	var prev time.Time
	for {
		var row metrics.SnapshotRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

func replayBatched(dec *json.Decoder, bw batchWriter) error {
	batch := make([]metrics.SnapshotRow, 0, replayBatchSize)
	for {
		var row metrics.SnapshotRow
		err := dec.Decode(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		batch = append(batch, row)
		if len(batch) == replayBatchSize {
			if err := bw.WriteBatch(batch); err != nil {
				return err
			}
			batch = make([]metrics.SnapshotRow, 0, replayBatchSize)
		}
	}
	if len(batch) == 0 {
		return nil
	}
	return bw.WriteBatch(batch)
}

// ReplayLogFile opens a file and replays its snapshot rows.
func ReplayLogFile(path string, writer SnapshotWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
