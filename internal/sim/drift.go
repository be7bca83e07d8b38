package sim

import (
	"fmt"
	"math"

	"astraguard-sim/internal/metrics"
)

// Source yields uniform draws in [0,1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Rule derives the next value of a single KPI record.
type Rule func(k metrics.KPI, src Source) metrics.KPI

// Rules maps a KPI identifier to its drift rule. Identifiers without an
// entry get TrendOnly.
type Rules map[string]Rule

const (
	latencyBase     = 142.0
	latencySpread   = 20.0
	latencyFloor    = 120.0
	latencyTrend    = 10.0
	latencyProgress = 71.0
	progressSpread  = 10.0
	progressMin     = 50.0
	progressMax     = 100.0

	cpuBase   = 47.0
	cpuSpread = 10.0

	defaultTrend = 1.0
)

// DefaultRules returns the rules for the built-in "latency" and "cpu" KPIs.
func DefaultRules() Rules {
	return Rules{
		"latency": Latency,
		"cpu":     CPU,
	}
}

// Apply returns a drifted copy of kpis. Order and identifiers are kept.
func (r Rules) Apply(kpis []metrics.KPI, src Source) []metrics.KPI {
	out := make([]metrics.KPI, len(kpis))
	for i, k := range kpis {
		rule, ok := r[k.ID]
		if !ok {
			rule = TrendOnly
		}
		out[i] = rule(k, src)
	}
	return out
}

// Latency redraws value (floored at 120ms), trend and progress.
func Latency(k metrics.KPI, src Source) metrics.KPI {
	ms := math.Max(latencyFloor, math.Round(latencyBase+jitter(src, latencySpread)))
	k.Value = fmt.Sprintf("%dms", int(ms))
	k.Trend = jitter(src, latencyTrend)
	k.Progress = clamp(latencyProgress+jitter(src, progressSpread), progressMin, progressMax)
	return k
}

// CPU redraws value and trend; progress is left alone.
func CPU(k metrics.KPI, src Source) metrics.KPI {
	pct := math.Round(cpuBase + jitter(src, cpuSpread))
	k.Value = fmt.Sprintf("%d%%", int(pct))
	k.Trend = jitter(src, defaultTrend)
	return k
}

// TrendOnly redraws the trend and keeps everything else.
func TrendOnly(k metrics.KPI, src Source) metrics.KPI {
	k.Trend = jitter(src, defaultTrend)
	return k
}

// jitter draws a symmetric offset in [-scale/2, scale/2).
func jitter(src Source, scale float64) float64 {
	return (src.Float64() - 0.5) * scale
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
