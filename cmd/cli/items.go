package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/spf13/cobra"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage registered items",
}

var itemsAddCmd = &cobra.Command{
	Use:   "add <item_id> <access_token>",
	Short: "Register an item, or replace its access token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, ctx, cancel, err := openApp(time.Minute)
		if err != nil {
			return err
		}
		defer cancel()
		defer application.Close()

		if err := application.RegisterItem(ctx, domain.Credential{ItemID: args[0], AccessToken: args[1]}); err != nil {
			return err
		}
		fmt.Printf("Item %s registered.\n", args[0])
		return nil
	},
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered items and their last sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, ctx, cancel, err := openApp(time.Minute)
		if err != nil {
			return err
		}
		defer cancel()
		defer application.Close()

		items, err := application.ListItems(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tLAST SYNCED\tCREATED")
		for _, item := range items {
			lastSynced := "never"
			if item.LastSyncedAt != nil {
				lastSynced = item.LastSyncedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", item.ItemID, lastSynced, item.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	itemsCmd.AddCommand(itemsAddCmd)
	itemsCmd.AddCommand(itemsListCmd)
}
