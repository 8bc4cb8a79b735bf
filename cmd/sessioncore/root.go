package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/internal/logging"
	"github.com/MrEthical07/sessioncore/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:           "sessioncore",
		Short:         "Session security service: tokens, CSRF, MFA, rate limits and telemetry",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"YAML config file; "+sessioncore.EnvPrefix+"_* environment variables override it")

	cmd.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSweepCmd(a),
		newReportCmd(a),
		newLoadtestCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

func (a *app) loadConfig() (sessioncore.Config, error) {
	cfg, err := sessioncore.LoadConfig(a.configPath)
	if err != nil {
		return sessioncore.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return sessioncore.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) logger(cfg sessioncore.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

// openStore opens and migrates the configured store.
func (a *app) openStore(ctx context.Context, cfg sessioncore.Config) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stdout, "sessioncore %s\n", version)
			return nil
		},
	}
}
