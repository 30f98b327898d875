package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows whether a pull would run now and the outcome of the last one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		status := application.Service.PullStatus(cmd.Context())
		fmt.Printf("locked: %v (%s)\n", status.Lock.Locked, status.Lock.Reason)
		if status.Last == nil {
			fmt.Println("no pull has run yet")
			return nil
		}
		renderResult(*status.Last)
		return nil
	},
}
