package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	searchProducts bool
	searchLimit    int
)

func init() {
	searchCmd.Flags().BoolVar(&searchProducts, "products", false, "Search product keys instead of classes.")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "The maximum amount of results.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query> [--products] [--limit <n>]",
	Short: "Searches the stored classes or product keys.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		query := strings.Join(args, " ")
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)

		if searchProducts {
			products, err := application.Service.SearchProducts(cmd.Context(), query, searchLimit)
			if err != nil {
				return err
			}
			t.AppendHeader(table.Row{"Key", "Description", "Class"})
			for _, p := range products {
				t.AppendRow(table.Row{p.Code, p.Description, p.ClaseNum})
			}
		} else {
			matches, err := application.Service.SearchClassifications(cmd.Context(), query, searchLimit)
			if err != nil {
				return err
			}
			t.AppendHeader(table.Row{"Class", "Name", "Family", "Segment", "Score"})
			for _, m := range matches {
				t.AppendRow(table.Row{m.ClaseNum, m.Clase, m.Grupo, m.Division, fmt.Sprintf("%.3f", m.Score)})
			}
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
