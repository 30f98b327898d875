package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"pys-backend/internal/pull"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var pullForced bool

func init() {
	pullCmd.Flags().BoolVar(&pullForced, "forced", false, "Pull even when the artifact is still fresh.")
	rootCmd.AddCommand(pullCmd)
}

func renderResult(result pull.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"ID", result.ID},
		{"Status", result.Status},
		{"Forced", result.Forced},
		{"Types", result.Stats.Types},
		{"Segments", result.Stats.Segments},
		{"Families", result.Stats.Families},
		{"Classes", result.Stats.Classes},
		{"Started at", result.StartedAt.Format(time.DateTime)},
		{"Finished at", result.FinishedAt.Format(time.DateTime)},
	})
	if result.Reason != "" {
		t.AppendRow(table.Row{"Reason", result.Reason})
	}
	if result.Error != "" {
		t.AppendRow(table.Row{"Error", result.Error})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// awaitPull waits for the task even after ctx is cancelled, exiting early
// would leave the lock marker behind and block every later pull.
func awaitPull(ctx context.Context, task *pull.Task, out io.Writer) pull.Result {
	select {
	case <-task.Done():
	case <-ctx.Done():
		fmt.Fprintln(out, "interrupted, waiting for the running pull to finish so its lock is released")
	}
	result, _ := task.Wait(context.WithoutCancel(ctx))
	return result
}

var pullCmd = &cobra.Command{
	Use:   "pull [--forced]",
	Short: "Walks the PyS form and replaces the stored taxonomy, waiting until it is done.",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		task := application.Coordinator.Pull(cmd.Context(), pullForced)
		result := awaitPull(cmd.Context(), task, cmd.ErrOrStderr())
		renderResult(result)
		if result.Status == pull.StatusFailed {
			return fmt.Errorf("pull failed: %w", result.Err)
		}
		return nil
	},
}
