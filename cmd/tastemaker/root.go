package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BurhanCantCode/TasteMaker/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tastemaker",
	Short: "Cross-device profile sync engine for TasteMaker",
	Long: `TasteMaker keeps a user's taste profile consistent between an
offline-capable local store and a shared cloud document, across devices
that may write concurrently.

The engine merges facts and likes last-write-wins per key, coalesces
rapid local mutations into debounced pushes, and suppresses echoes of
its own writes arriving back through the live subscription.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data-dir>/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "local", Title: "Local Store Commands:"},
	)
}

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
