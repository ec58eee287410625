// Package main provides the morningpulse CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"MorningPulse/internal/app"
	"MorningPulse/internal/config"
	"MorningPulse/internal/domain"
	"MorningPulse/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command for the morningpulse CLI.
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "morningpulse",
		Short:        "Curate a daily crypto morning digest",
		Long:         "Morningpulse collects KOL posts and crypto news, scores and deduplicates them, and publishes a short daily digest to Telegram.",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.SetVersionTemplate("morningpulse version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults to $MORNING_PULSE_CONFIG)")

	load := func() config.Config { return config.LoadFrom(configPath) }

	rootCmd.AddCommand(newRunCmd(load))
	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newConfigCmd(load))

	return rootCmd
}

// newRunCmd creates the run subcommand: one pipeline pass right now.
func newRunCmd(load func() config.Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the digest pipeline once",
		Long:  "Collect, score, select and publish a digest immediately. With --dry-run the digest is printed instead of posted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger, app.Options{DryRun: dryRun, Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s (%d selected of %d considered)\n",
				report.RunID, report.Outcome, report.Stats.Selected, report.Stats.ItemsConsidered)
			if report.Outcome == domain.OutcomeFailed {
				return fmt.Errorf("run failed: %s", report.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of posting it")

	return cmd
}

// newServeCmd creates the serve subcommand: the long-running daily scheduler.
func newServeCmd(load func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daily scheduler",
		Long:  "Publish a digest every day at the configured time. Send SIGHUP for an immediate run; SIGINT or SIGTERM stops the scheduler.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}
}

// newConfigCmd creates the config subcommand.
func newConfigCmd(load func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, the YAML file and environment overrides are merged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := load().YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}
