package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clientflow/leadcheck/internal/config"
	"github.com/clientflow/leadcheck/internal/logger"
)

var cfgFile string

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.SetupDefault(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, log, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "leadcheck",
		Short: "leadcheck - conversational lead capture with email verification",
		Long: `leadcheck runs a chat-driven signup flow that collects a name and an
email address, sends a verification email and watches a mailbox for
bounces before marking the lead as verified.

Leads are stored locally in SQLite and optionally mirrored to a
spreadsheet web app.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.leadcheck/config.yaml)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(leadsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(checkBounceCmd())
	rootCmd.AddCommand(sendTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
