package main

import (
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/export"
	"github.com/dvloznov/finance-sync/internal/infra/tabular"
	"github.com/dvloznov/finance-sync/internal/provider"
	"github.com/spf13/cobra"
)

var fetchFlags struct {
	itemID     string
	start      string
	end        string
	accountIDs []string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Print every transaction of a date range as CSV, without touching the cursor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		start, err := civil.ParseDate(fetchFlags.start)
		if err != nil {
			return fmt.Errorf("invalid --start, expected YYYY-MM-DD: %w", err)
		}
		end, err := civil.ParseDate(fetchFlags.end)
		if err != nil {
			return fmt.Errorf("invalid --end, expected YYYY-MM-DD: %w", err)
		}
		if end.Before(start) {
			return fmt.Errorf("--end %s is before --start %s", end, start)
		}

		application, ctx, cancel, err := openApp(10 * time.Minute)
		if err != nil {
			return err
		}
		defer cancel()
		defer application.Close()

		window := provider.Window{Start: start, End: end}
		records, err := application.Fetch(ctx, fetchFlags.itemID, window, fetchFlags.accountIDs)
		if err != nil {
			return err
		}

		rows, err := export.Normalize(records)
		if err != nil {
			return err
		}

		schema := domain.TransactionSchema
		table := &tabular.Table{}
		table.EnsureHeader(schema.Columns)
		for _, row := range rows {
			table.Append([][]string{export.Project(schema.Columns, row)})
		}
		return table.WriteCSV(os.Stdout)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFlags.itemID, "item", "", "Item ID to fetch (required)")
	fetchCmd.Flags().StringVar(&fetchFlags.start, "start", "", "First date, YYYY-MM-DD (required)")
	fetchCmd.Flags().StringVar(&fetchFlags.end, "end", "", "Last date, YYYY-MM-DD (required)")
	fetchCmd.Flags().StringSliceVar(&fetchFlags.accountIDs, "account", nil, "Restrict to these account IDs (repeatable)")
	_ = fetchCmd.MarkFlagRequired("item")
	_ = fetchCmd.MarkFlagRequired("start")
	_ = fetchCmd.MarkFlagRequired("end")
}
