package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-organizer/internal/common"
)

var (
	flagConfig    string
	flagEnvFile   string
	flagLogLevel  string
	flagLogFormat string

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "invoicectl",
	Short: "Extract, organize and summarize PDF invoices",
	Long: `invoicectl reads PDF invoices from an inbox directory, extracts date, sender,
invoice number and amount with a language model, stores the results in a JSON
metadata document, mirrors the files into by_date and by_sender trees and
writes per-sender and per-month totals plus a review queue.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runAll,
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "invoicectl.toml", "TOML config file (missing file is fine)")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "text or json")

	rootCmd.AddCommand(newRunCmd(), newProcessCmd(), newOrganizeCmd(), newSummarizeCmd(), newWatchCmd(), newFetchCmd(), newInspectCmd())
}

func setup(cmd *cobra.Command, _ []string) error {
	l, err := newLogger(flagLogLevel, flagLogFormat)
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(logger)

	c, err := common.LoadConfig(flagConfig, flagEnvFile)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	logger.Debug("config.loaded", "config", flagConfig, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "inbox", cfg.Paths.InboxDir)
	return nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}
