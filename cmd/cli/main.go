package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/finance-sync/internal/app"
	"github.com/dvloznov/finance-sync/internal/config"
	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "finance-sync",
	Short:         "Export bank transactions incrementally into a spreadsheet-like sink",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (yaml, json, toml or env)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cursorCmd)
	rootCmd.AddCommand(itemsCmd)
}

// openApp loads and validates the configuration and connects the backends.
// The returned context carries the configured logger and ends after timeout.
func openApp(timeout time.Duration) (*app.App, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}

	// Logs go to stderr so command output stays pipeable.
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})

	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), timeout)

	application, err := app.Open(ctx, cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return application, ctx, cancel, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
