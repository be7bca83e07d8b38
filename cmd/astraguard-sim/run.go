package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"astraguard-sim/internal/admin"
	"astraguard-sim/internal/config"
	"astraguard-sim/internal/health"
	"astraguard-sim/internal/logging"
	"astraguard-sim/internal/metrics"
	"astraguard-sim/internal/sim"
)

const componentAdmin = "admin"

var (
	runConfigPath string
	runSchemaPath string
	runFixture    string
	runTick       time.Duration
	runOutput     string
	runLogFile    string
	runPaused     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the metrics store and drift KPIs",
	Long:  "run seeds the metrics store from a fixture, drifts its KPIs on a timer and serves them over the admin panel.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)

		var logOut io.Writer = os.Stderr
		if cfg.Output.Mode == modeTUI {
			logOut = io.Discard
		}
		logger := newLogger(logOut, cfg.Log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)

		snap, err := metrics.LoadFixture(cfg.Fixture)
		if err != nil {
			return err
		}
		store := metrics.NewStore()
		store.Initialize(snap)

		var audit *logging.Audit
		if cfg.Audit.Path != "" {
			audit, err = logging.NewAudit(logging.AuditOptions{
				Path:       cfg.Audit.Path,
				MaxSizeMB:  cfg.Audit.MaxSizeMB,
				MaxBackups: cfg.Audit.MaxBackups,
				MaxAgeDays: cfg.Audit.MaxAgeDays,
				Compress:   cfg.Audit.Compress,
			})
			if err != nil {
				return err
			}
			defer audit.Close()
		}
		audit.Log(ctx, logging.AuditConfigChange, logging.Record{
			Actor:    "system",
			Resource: runConfigPath,
			Action:   "load",
			Details: map[string]any{
				"fixture":  cfg.Fixture,
				"interval": cfg.Drift.Interval.String(),
				"output":   cfg.Output.Mode,
			},
		})

		writer, tui, cleanup, err := newWriters(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		mon := health.NewMonitor()
		simulator := sim.NewSimulator(store, writer, sim.Options{
			Interval: cfg.Drift.Interval,
			Seed:     cfg.Drift.Seed,
			Health:   mon,
			Paused:   cfg.Drift.Paused,
		})
		if tui != nil {
			tui.SetControls(
				func() { simulator.Tick(ctx) },
				func(p bool) {
					if p {
						simulator.Pause()
					} else {
						simulator.Resume()
					}
				},
				cfg.Drift.Paused,
			)
		}

		if err := simulator.Start(ctx); err != nil {
			return err
		}
		logger.Info("simulator started",
			"run_id", simulator.RunID(),
			"interval", simulator.Interval(),
			"kpis", len(snap.KPIs),
			"breakers", len(snap.Breakers),
		)

		if cfg.AdminEnabled() {
			aw, _ := writer.(sim.AdminStatusWriter)
			startAdmin(ctx, admin.NewServer(simulator, audit), cfg.Admin.Addr, mon, aw, audit)
		}

		<-ctx.Done()
		simulator.Stop()
		st := simulator.Status()
		logger.Info("simulator stopped", "run_id", st.RunID, "ticks", st.Ticks, "revision", st.Revision)
		return nil
	},
}

// startAdmin binds addr before reporting the panel up, so a bind failure is
// never masked by a healthy status. aw may be nil.
func startAdmin(ctx context.Context, srv *admin.Server, addr string, mon *health.Monitor, aw sim.AdminStatusWriter, audit *logging.Audit) bool {
	logger := logging.FromContext(ctx)
	mon.Register(componentAdmin, map[string]string{"addr": addr})
	fail := func(err error) {
		logger.Error("admin server failed", "err", err)
		mon.MarkFailed(componentAdmin, err)
		if aw != nil {
			aw.SetAdminStatus(addr, false)
		}
	}

	ln, err := srv.Listen(addr)
	if err != nil {
		fail(err)
		return false
	}
	mon.MarkHealthy(componentAdmin, nil)
	if aw != nil {
		aw.SetAdminStatus(addr, true)
	}
	audit.Log(ctx, logging.AuditAdminAction, logging.Record{
		Actor:    "system",
		Resource: "admin",
		Action:   "listen",
		Details:  map[string]any{"addr": ln.Addr().String()},
	})
	go func() {
		if err := srv.Serve(ctx, ln); err != nil {
			fail(err)
		}
	}()
	return true
}

// applyRunFlags overrides cfg with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("fixture") {
		cfg.Fixture = runFixture
	}
	if flags.Changed("tick") && runTick > 0 {
		cfg.Drift.Interval = runTick
	}
	if flags.Changed("output") {
		cfg.Output.Mode = runOutput
	}
	if flags.Changed("log-file") {
		cfg.Output.LogFile = runLogFile
	}
	if flags.Changed("paused") {
		cfg.Drift.Paused = runPaused
	}
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/astraguard.yaml", "Path to configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "", "Path to CUE schema file (embedded schema if empty)")
	runCmd.Flags().StringVar(&runFixture, "fixture", "", "Path to the seed snapshot (overrides config)")
	runCmd.Flags().DurationVar(&runTick, "tick", config.DefaultDriftInterval, "Drift interval (overrides config)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Output mode: auto, stdout, json, tui, greptime (overrides config)")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export snapshots (JSONL)")
	runCmd.Flags().BoolVar(&runPaused, "paused", false, "Start with periodic drift paused")
}
