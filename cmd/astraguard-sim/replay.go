package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"astraguard-sim/internal/config"
	"astraguard-sim/internal/sim"
)

var (
	replayInput  string
	replaySpeed  float64
	replayOutput string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a snapshot log file",
	Long:  "replay feeds snapshot rows from a JSONL log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := config.Default()
		if err != nil {
			return err
		}
		cfg.Output.Mode = replayOutput
		if cfg.Output.Mode == modeTUI {
			return fmt.Errorf("output mode tui is not supported for replay")
		}
		writer, _, cleanup, err := newWriters(cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		return sim.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to snapshot log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (<=0 replays without delay)")
	replayCmd.Flags().StringVar(&replayOutput, "output", modeAuto, "Output mode: auto, stdout, json, greptime")
	replayCmd.MarkFlagRequired("input")
}
