package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/sessioncore"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(a.stdout, "schema up to date (%s)\n", st.DriverName())
			return nil
		},
	}
}

// newSweepCmd runs one sweep. It is safe to run while serve is handling
// traffic.
func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired revocations, CSRF tokens, old attempts and resolved events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger, err := a.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			cfg.RateLimit.Enabled = false
			cfg.Telemetry.Alerts.Dispatcher.Enabled = false
			engine, err := sessioncore.New().WithConfig(cfg).WithStore(st).WithLogger(logger).Build()
			if err != nil {
				return err
			}
			defer engine.Close()

			res, sweepErr := engine.Sweep(cmd.Context())
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			return sweepErr
		},
	}
}

// newReportCmd prints the security posture of the loaded config without
// touching the store.
func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the security posture of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.SecurityReport())
		},
	}
}
