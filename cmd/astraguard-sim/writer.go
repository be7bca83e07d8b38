package main

import (
	"fmt"
	"io"

	"astraguard-sim/internal/config"
	"astraguard-sim/internal/sim"
)

// Output modes.
const (
	modeAuto     = "auto"
	modeStdout   = "stdout"
	modeJSON     = "json"
	modeTUI      = "tui"
	modeGreptime = "greptime"
)

// newWriters sets up the snapshot writer for cfg.Output. The TUI writer is
// returned separately so the caller can hand it drift controls. cleanup
// closes every opened sink.
func newWriters(cfg *config.Config) (sim.SnapshotWriter, *sim.TUIWriter, func(), error) {
	base, tui, err := baseWriter(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Output.LogFile == "" {
		return base, tui, closer(base), nil
	}

	fw, err := sim.NewFileWriter(cfg.Output.LogFile)
	if err != nil {
		closer(base)()
		return nil, nil, nil, err
	}
	mw := sim.NewMultiWriter(base, fw)
	return mw, tui, func() { mw.Close() }, nil
}

// baseWriter chooses the underlying writer. auto selects GreptimeDB when an
// endpoint is configured and STDOUT otherwise.
func baseWriter(cfg *config.Config) (sim.SnapshotWriter, *sim.TUIWriter, error) {
	mode := cfg.Output.Mode
	if mode == "" || mode == modeAuto {
		mode = modeStdout
		if cfg.Greptime.Endpoint != "" {
			mode = modeGreptime
		}
	}
	switch mode {
	case modeStdout:
		return sim.NewStdoutWriter(), nil, nil
	case modeJSON:
		return sim.NewJSONStdoutWriter(), nil, nil
	case modeTUI:
		tw := sim.NewTUIWriter("AstraGuard System Health")
		return tw, tw, nil
	case modeGreptime:
		if cfg.Greptime.Endpoint == "" {
			return nil, nil, fmt.Errorf("output mode greptime requires GREPTIMEDB_ENDPOINT or greptime.endpoint")
		}
		w, err := sim.NewGreptimeDBWriter(cfg.Greptime)
		if err != nil {
			return nil, nil, err
		}
		return w, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown output mode %q", mode)
	}
}

func closer(w sim.SnapshotWriter) func() {
	return func() {
		if c, ok := w.(io.Closer); ok {
			c.Close()
		}
	}
}
