package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}

	root := &cobra.Command{
		Use:   "scanner",
		Short: "Signal scanner and paper position tracker",
		Long: `Scans crypto, BIST and US symbols on a fixed interval, evaluates the
momentum and swing strategies, and tracks one paper position per symbol and
strategy against a simulated portfolio.

Use 'scanner run' to start the service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", defaultPath, "path to the YAML config file (env CONFIG_PATH)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newScanOnceCmd())
	root.AddCommand(newSignalsCmd())
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newStatusCmd())
	return root
}

func configFrom(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString("config")
}
