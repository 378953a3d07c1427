// Package main is the selfscore service and operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/SelfScore/Self-Score-sub000/internal/config"
	"github.com/SelfScore/Self-Score-sub000/internal/logging"
)

var (
	configPath string
	logLevel   string

	// cfg is resolved before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "selfscore",
	Short: "Interview sessions, feedback and review for SelfScore",
	Long: `selfscore runs the interview API (text and voice sessions, AI feedback and the
admin review queue) and the operator commands that maintain its data.

Configuration is read from the environment, a .env file in the working directory
and, when given, the file passed with --config.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (.env, .yaml or .json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

func loadConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level := loaded.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logging.Init(level, loaded.Log.Pretty)
	cfg = loaded
	return nil
}

func main() {
	// Load .env if present; the environment wins over it.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
