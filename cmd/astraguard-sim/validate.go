package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"astraguard-sim/internal/config"
	"astraguard-sim/internal/metrics"
)

var (
	validateConfigPath string
	validateSchemaPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long:  "validate checks the configuration against the CUE schema and decodes the referenced fixture.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(validateConfigPath, validateSchemaPath)
		if err != nil {
			return err
		}
		snap, err := metrics.LoadFixture(cfg.Fixture)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: ok (%d kpis, %d breakers, %d services)\n",
			validateConfigPath, len(snap.KPIs), len(snap.Breakers), len(snap.Services))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "config/astraguard.yaml", "Path to configuration YAML")
	validateCmd.Flags().StringVar(&validateSchemaPath, "schema", "", "Path to CUE schema file (embedded schema if empty)")
}
