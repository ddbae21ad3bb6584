// Command stationpivot runs the station pivot pipeline on a local archive.
//
// Usage:
//
//	stationpivot process data.zip --out-dir out --min-completeness 60
//	stationpivot inspect out/organized_data.xlsx --rows 5
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/station-pivot-etl/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "stationpivot",
		Short:        "Pivot nested station archives into wide spreadsheets",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg.LogLevel = logLevel
		return cfg, nil
	}

	root.AddCommand(newProcessCmd(loadConfig), newInspectCmd())
	return root
}
