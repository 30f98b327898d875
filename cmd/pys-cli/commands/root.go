package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"pys-backend/internal/app"
	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pys-cli",
	Short: "pys-cli pulls, inspects and exports the PyS product/service taxonomy.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The config file to read.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readConfig falls back to the defaults when there is no config file.
func readConfig() (config.Config, error) {
	cfg, err := config.Read(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return cfg, err
}

func openApp(cmd *cobra.Command, configure ...func(cfg *config.Config)) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	for _, c := range configure {
		c(&cfg)
	}
	// publishing is the server's job
	cfg.Minio = nil
	cfg.Amqp = nil
	return app.New(cmd.Context(), cfg, telemetry.SlogAPI{})
}
