package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/KaramelBytes/crimelens-cli/internal/config"
	"github.com/KaramelBytes/crimelens-cli/internal/logging"
	"github.com/KaramelBytes/crimelens-cli/internal/ui"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	debug     bool
	logFormat string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "crimelens",
	Short: "CrimeLens CLI: profile and cluster incident records by place and time",
	Long: `CrimeLens turns raw incident records into per-group location and time-of-day
frequency profiles, prunes uninformative features and clusters the groups with k-means.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.Error("Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.crimelens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text|json (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to requireConfig and report there
		ui.Warning("Warning: failed to load config: %v", err)
		cfg = nil
	} else {
		cfg = c
	}
	level, format := "info", logFormat
	if cfg != nil {
		level = cfg.LogLevel
		if format == "" {
			format = cfg.LogFormat
		}
	}
	if debug {
		level = "debug"
	}
	if _, err := logging.Setup(logging.Options{Level: level, Format: format}); err != nil {
		ui.Warning("Warning: %v; using defaults", err)
		_, _ = logging.Setup(logging.Options{})
	}
}

// requireConfig returns the loaded configuration or the load error.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg = c
	return cfg, nil
}
