package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neur0map/yinx/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "yinx",
	Short: "Yinx - shell session capture and retrieval for pentesters",
	Long: `Yinx records the commands and outputs of your shell sessions,
reduces the captured volume through a three-tier filter, and indexes
the residue for hybrid semantic and keyword search with provenance
back to the raw capture.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the config file, falling back to defaults when the
// file does not exist.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = defaultConfigPath()
	}
	loader := config.NewConfigLoader(config.NewValidator())
	return loader.LoadWithDefaults(path)
}

// defaultConfigPath is ~/.yinx/config.yaml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".yinx", "config.yaml")
	}
	return filepath.Join(home, ".yinx", "config.yaml")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file (default ~/.yinx/config.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(versionCmd)
}
