package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/finance-sync/internal/app"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/spf13/cobra"
)

var exportFlags struct {
	itemID       string
	accountIDs   []string
	lookbackDays int
	timeout      time.Duration
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run one export for an item and checkpoint its cursor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, ctx, cancel, err := openApp(exportFlags.timeout)
		if err != nil {
			return err
		}
		defer cancel()
		defer application.Close()

		result, err := application.Export(ctx, app.ExportRequest{
			ItemID:       exportFlags.itemID,
			AccountIDs:   exportFlags.accountIDs,
			LookbackDays: exportFlags.lookbackDays,
		})

		if result != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(result); encErr != nil {
				return encErr
			}
		}

		if err != nil {
			kind := domain.KindOf(err)
			if kind == "" {
				return err
			}
			return fmt.Errorf("export failed (kind=%s, risk=%s): %w", kind, kind.Risk(), err)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.itemID, "item", "", "Item ID to export (required)")
	exportCmd.Flags().StringSliceVar(&exportFlags.accountIDs, "account", nil, "Restrict to these account IDs (repeatable)")
	exportCmd.Flags().IntVar(&exportFlags.lookbackDays, "lookback-days", 0, "Days of history for a first run (default LOOKBACK_DAYS)")
	exportCmd.Flags().DurationVar(&exportFlags.timeout, "timeout", 10*time.Minute, "Abort the run after this long")
	_ = exportCmd.MarkFlagRequired("item")
}
