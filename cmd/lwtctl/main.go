// Command lwtctl drives the lwt scheduler from the command line — the
// Go replacement for the C original's main.c/main_backup.c driver
// programs, which hard-coded a handful of scenarios into an ad hoc
// test_lwt()/main().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cooniur/lwt/internal/config"
	"github.com/cooniur/lwt/internal/telemetry"
)

var (
	version = "0.1.0-dev"
	commit  = "dev"
)

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:     "lwtctl",
		Short:   "lwtctl drives the lwt fiber runtime",
		Long:    "lwtctl spawns workers and fibers on the lwt scheduler and runs canned scenarios, printing scheduler diagnostics as it goes.",
		Version: fmt.Sprintf("%s (%s)", version, commit),
	}

	rootCmd.PersistentFlags().String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	rootCmd.AddCommand(newDemoCommand(cfg))
	rootCmd.AddCommand(newPoolCommand(cfg))

	if err := rootCmd.Execute(); err != nil {
		logger := telemetry.NewLogger(cfg.LogLevel)
		logger.Errorw("lwtctl failed", "error", err)
		os.Exit(1)
	}
}
