// KPI and breaker records shown on the system health panel
package metrics

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// BreakerState is the circuit-breaker status between two endpoints.
type BreakerState string

// Breaker states. Fixtures are not validated, so other values may appear.
const (
	BreakerOpen    BreakerState = "open"
	BreakerHalf    BreakerState = "half"
	BreakerTripped BreakerState = "tripped"
)

// Known reports whether s is one of the three defined states.
func (s BreakerState) Known() bool {
	switch s {
	case BreakerOpen, BreakerHalf, BreakerTripped:
		return true
	}
	return false
}

// KPI is one key performance indicator card.
type KPI struct {
	ID       string  `json:"id" yaml:"id"`
	Label    string  `json:"label" yaml:"label"`
	Value    string  `json:"value" yaml:"value"` // pre-formatted, unit-bearing
	Trend    float64 `json:"trend" yaml:"trend"`
	Progress float64 `json:"progress" yaml:"progress"` // nominally 0-100, not enforced
	Unit     string  `json:"unit" yaml:"unit"`
}

// Breaker is the circuit-breaker state between a source and destination endpoint.
type Breaker struct {
	Source      string       `json:"from" yaml:"from"`
	Destination string       `json:"to" yaml:"to"`
	State       BreakerState `json:"state" yaml:"state"`
	Duration    string       `json:"duration" yaml:"duration"`
	Reason      string       `json:"reason" yaml:"reason"`
}

// Snapshot is the full panel state at one point in time.
type Snapshot struct {
	KPIs     []KPI     `json:"kpis" yaml:"kpis"`
	Breakers []Breaker `json:"breakers" yaml:"breakers"`
	Services []any     `json:"services" yaml:"services"`
}

// Clone returns a copy whose slices do not alias s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{}
	if s.KPIs != nil {
		out.KPIs = append([]KPI(nil), s.KPIs...)
	}
	if s.Breakers != nil {
		out.Breakers = append([]Breaker(nil), s.Breakers...)
	}
	if s.Services != nil {
		out.Services = append([]any(nil), s.Services...)
	}
	return out
}

// SnapshotRow is one committed snapshot as handed to writers.
type SnapshotRow struct {
	RunID     string    `json:"run_id"`
	Revision  uint64    `json:"revision"`
	KPIs      []KPI     `json:"kpis"`
	Breakers  []Breaker `json:"breakers"`
	Timestamp time.Time `json:"ts"`
}

// KPITableName is the GreptimeDB table for KPI rows. It defaults to
// "kpi_metrics" and can be overridden via the KPI_TABLE environment variable.
var KPITableName = func() string {
	if env := os.Getenv("KPI_TABLE"); env != "" {
		return env
	}
	return "kpi_metrics"
}()

// BreakerTableName is the GreptimeDB table for breaker rows, overridable via BREAKER_TABLE.
var BreakerTableName = func() string {
	if env := os.Getenv("BREAKER_TABLE"); env != "" {
		return env
	}
	return "breaker_states"
}()

// Numeric parses the leading number of the display value, e.g. 142 for
// "142ms" or 99.87 for "99.87%".
func (k KPI) Numeric() (float64, bool) {
	s := strings.TrimSpace(k.Value)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || ((c == '-' || c == '+') && end == 0) {
			end++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
