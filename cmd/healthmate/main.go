package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"healthmate/internal/config"
	"healthmate/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "healthmate",
	Short: "Vital-sign threshold alerts",
	Long: `healthmate evaluates blood pressure and blood sugar readings against each
user's thresholds and alerts their emergency contacts when a reading is out of range.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}

		loaded, err := config.Load(files...)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			loaded.LogLevel = level
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			loaded.DatabasePath = db
		}

		cfg = loaded
		logger.Init(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", "", "Path to a .env file (default .env)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite database")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
