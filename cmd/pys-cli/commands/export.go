package commands

import (
	"fmt"
	"os"

	"pys-backend/internal/taxonomy"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOut    string
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "The output format, json or xml.")
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "The file to write, - writes to stdout.")
	rootCmd.AddCommand(exportCmd)
}

func export(tree taxonomy.Tree, format, out string) error {
	switch format {
	case "json":
		if out != "-" {
			return taxonomy.WriteJSON(out, tree)
		}
		data, err := taxonomy.ToJSON(tree)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	case "xml":
		if out != "-" {
			return taxonomy.WriteXML(out, tree)
		}
		data, err := taxonomy.ToXML(tree)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q, expected json or xml", format)
	}
}

var exportCmd = &cobra.Command{
	Use:   "export [--format json|xml] [--out <path>]",
	Short: "Exports the stored taxonomy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		tree, err := application.Service.Latest(cmd.Context())
		if err != nil {
			return err
		}
		return export(tree, exportFormat, exportOut)
	},
}
