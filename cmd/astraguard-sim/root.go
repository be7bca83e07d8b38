package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"astraguard-sim/internal/config"
	"astraguard-sim/internal/logging"
)

var (
	logFormat string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "astraguard-sim",
	Short: "AstraGuard system health simulator",
	Long:  "astraguard-sim serves a fixture-seeded metrics store whose KPIs drift on a timer, with replay and dashboard utilities.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(validateCmd)
}

// newLogger builds the process logger from cfg and the persistent flags.
func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	format, level := cfg.Format, cfg.Level
	if logFormat != "" {
		format = logFormat
	}
	if logLevel != "" {
		level = logLevel
	}
	return logging.NewWithOptions(w, format, level)
}
