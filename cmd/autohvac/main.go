// CLAUDE:SUMMARY autohvac CLI entry point: cobra root with config/log flags; subcommands run, serve, worker, mcp, climate, sample.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adixon02/AutoHVAC-sub002/config"
	"github.com/adixon02/AutoHVAC-sub002/observability"
)

var (
	flagConfig   string
	flagLogLevel string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "autohvac",
	Short: "Blueprint PDF to ACCA Manual J load calculation",
	Long: `autohvac reads a residential floor plan PDF, structures its rooms and
computes heating and cooling loads with ACCA Manual J.

Usage:
  autohvac run plan.pdf --zip 97701     one blueprint, result on stdout
  autohvac serve                        HTTP API with an in-process worker
  autohvac worker                       queue worker only
  autohvac mcp                          MCP tools over stdio`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagLogLevel != "" {
			cfg.Log.Level = flagLogLevel
		}
		// stdout carries results for run and the protocol for mcp.
		logger, err = observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", os.Getenv("AUTOHVAC_CONFIG"), "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
