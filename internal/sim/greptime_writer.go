package sim

import (
	"context"
	"math"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"astraguard-sim/internal/config"
	"astraguard-sim/internal/metrics"
)

const greptimeWriteTimeout = 5 * time.Second

// greptimeClient is the part of the ingester client the writer uses.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes KPI and breaker rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client       greptimeClient
	kpiTable     string
	breakerTable string
	breakerRun   string
}

// NewGreptimeDBWriter connects to GreptimeDB. Empty table names fall back to
// metrics.KPITableName and metrics.BreakerTableName.
func NewGreptimeDBWriter(cfg config.Greptime) (*GreptimeDBWriter, error) {
	c := greptime.NewConfig(cfg.Endpoint).WithPort(cfg.Port).WithDatabase(cfg.Database)
	client, err := greptime.NewClient(c)
	if err != nil {
		return nil, err
	}
	return newGreptimeDBWriter(client, cfg.KPITable, cfg.BreakerTable), nil
}

func newGreptimeDBWriter(client greptimeClient, kpiTable, breakerTable string) *GreptimeDBWriter {
	if kpiTable == "" {
		kpiTable = metrics.KPITableName
	}
	if breakerTable == "" {
		breakerTable = metrics.BreakerTableName
	}
	return &GreptimeDBWriter{client: client, kpiTable: kpiTable, breakerTable: breakerTable}
}

// Write inserts a single snapshot.
func (w *GreptimeDBWriter) Write(row metrics.SnapshotRow) error {
	return w.WriteBatch([]metrics.SnapshotRow{row})
}

// WriteBatch inserts the KPI rows of every snapshot. Breaker rows are only
// written for the first snapshot of each run, as breakers never drift.
func (w *GreptimeDBWriter) WriteBatch(rows []metrics.SnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}

	kpis, err := w.kpiRows(rows)
	if err != nil {
		return err
	}
	tables := []*table.Table{kpis}

	// breakerRun only advances once the write succeeds, so a failed first
	// write of a run retries its breaker rows.
	var breakerRows []metrics.SnapshotRow
	run := w.breakerRun
	for _, r := range rows {
		if r.RunID != run && len(r.Breakers) > 0 {
			breakerRows = append(breakerRows, r)
			run = r.RunID
		}
	}
	if len(breakerRows) > 0 {
		br, err := w.breakerRows(breakerRows)
		if err != nil {
			return err
		}
		tables = append(tables, br)
	}

	ctx, cancel := context.WithTimeout(context.Background(), greptimeWriteTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tables...); err != nil {
		return err
	}
	w.breakerRun = run
	return nil
}

func (w *GreptimeDBWriter) kpiRows(rows []metrics.SnapshotRow) (*table.Table, error) {
	tbl, err := table.New(w.kpiTable)
	if err != nil {
		return nil, err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("kpi_id", types.STRING)
	tbl.AddFieldColumn("label", types.STRING)
	tbl.AddFieldColumn("value", types.STRING)
	tbl.AddFieldColumn("numeric_value", types.FLOAT64)
	tbl.AddFieldColumn("trend", types.FLOAT64)
	tbl.AddFieldColumn("progress", types.FLOAT64)
	tbl.AddFieldColumn("unit", types.STRING)
	tbl.AddFieldColumn("revision", types.INT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		for _, k := range r.KPIs {
			num, ok := k.Numeric()
			if !ok {
				num = math.NaN()
			}
			if err := tbl.AddRow(r.RunID, k.ID, k.Label, k.Value, num, k.Trend, k.Progress, k.Unit, int64(r.Revision), r.Timestamp); err != nil {
				return nil, err
			}
		}
	}
	return tbl, nil
}

func (w *GreptimeDBWriter) breakerRows(rows []metrics.SnapshotRow) (*table.Table, error) {
	tbl, err := table.New(w.breakerTable)
	if err != nil {
		return nil, err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("source", types.STRING)
	tbl.AddTagColumn("destination", types.STRING)
	tbl.AddFieldColumn("state", types.STRING)
	tbl.AddFieldColumn("duration", types.STRING)
	tbl.AddFieldColumn("reason", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		for _, b := range r.Breakers {
			if err := tbl.AddRow(r.RunID, b.Source, b.Destination, string(b.State), b.Duration, b.Reason, r.Timestamp); err != nil {
				return nil, err
			}
		}
	}
	return tbl, nil
}
