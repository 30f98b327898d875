package commands

import (
	"os"

	"pys-backend/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var catalogForced bool

func init() {
	catalogCmd.Flags().BoolVar(&catalogForced, "forced", false, "Import even when the newest catalog was already imported.")
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog [--forced]",
	Short: "Imports the newest published product/service key catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd, func(cfg *config.Config) {
			cfg.Catalog.Enabled = true
		})
		if err != nil {
			return err
		}
		defer application.Close()

		result, err := application.Ingester.Ingest(cmd.Context(), catalogForced)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Field", "Value"})
		t.AppendRows([]table.Row{
			{"Date", result.DateKey},
			{"Url", result.Url},
			{"Products", result.Products},
			{"Skipped rows", result.Skipped},
			{"Already imported", result.AlreadyImported},
		})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
