package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"iganalyzer/pkg/config"
	"iganalyzer/pkg/logger"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile     string
	logLevel       string
	logJSON        bool
	sessionBackend string
	sessionDir     string
	mediaDir       string
	accountName    string
)

var rootCmd = &cobra.Command{
	Use:   "iganalyzer",
	Short: "Analyze Instagram profiles and their recent posts",
	Long: `iganalyzer fetches an Instagram profile, its latest posts and stories,
stores the media locally and computes engagement analytics.

Run 'iganalyzer serve' for the web API with background jobs and expiring
sessions, or 'iganalyzer analyze <url>' for a one-off analysis.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.iganalyzer.yaml or ~/.config/iganalyzer/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&sessionBackend, "session-backend", "", "session snapshot backend (file, sqlite)")
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", "", "directory for session snapshots")
	rootCmd.PersistentFlags().StringVar(&mediaDir, "media-dir", "", "directory for downloaded media")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "stored Instagram account to send requests as")

	rootCmd.SetVersionTemplate(`iganalyzer {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags for config.MergeCommandLineFlags
func globalFlags() map[string]interface{} {
	return map[string]interface{}{
		"log-level":       logLevel,
		"log-json":        logJSON,
		"session-backend": sessionBackend,
		"session-dir":     sessionDir,
		"media-dir":       mediaDir,
	}
}

// loadConfig resolves configuration and installs the global logger
func loadConfig(extra map[string]interface{}) (*config.Config, logger.Logger, error) {
	flags := globalFlags()
	for k, v := range extra {
		flags[k] = v
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewWithWriter(&cfg.Logging, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetLogger(log)
	return cfg, log, nil
}
