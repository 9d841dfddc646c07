package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or reset an item's sync cursor",
}

var cursorShowCmd = &cobra.Command{
	Use:   "show <item_id>",
	Short: "Print the saved cursor of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, ctx, cancel, err := openApp(time.Minute)
		if err != nil {
			return err
		}
		defer cancel()
		defer application.Close()

		c, err := application.LoadCursor(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(c.String())
		return nil
	},
}

var cursorResetCmd = &cobra.Command{
	Use:   "reset <item_id>",
	Short: "Forget an item's cursor; the next export starts with a historical fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, ctx, cancel, err := openApp(time.Minute)
		if err != nil {
			return err
		}
		defer cancel()
		defer application.Close()

		if err := application.ResetCursor(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Cursor of %s reset.\n", args[0])
		return nil
	},
}

func init() {
	cursorCmd.AddCommand(cursorShowCmd)
	cursorCmd.AddCommand(cursorResetCmd)
}
