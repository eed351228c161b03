package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/crimelens-cli/internal/config"
	"github.com/KaramelBytes/crimelens-cli/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set CrimeLens configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		next := *c
		if err := setKey(&next, args[0], args[1]); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(&next, cfgFile); err != nil {
			return err
		}
		cfg = &next
		ui.Success("Saved config")
		return nil
	},
}

func setKey(c *cfgpkg.Global, key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "source":
		c.Source = val
	case "delimiter":
		c.Delimiter, err = parseDelimiter(val)
	case "sheet":
		c.Sheet = val
	case "max_rows":
		c.MaxRows, err = atoi()
	case "columns.group":
		c.Columns.Group = val
	case "columns.location":
		c.Columns.Location = val
	case "columns.time":
		c.Columns.Time = val
	case "missing_tokens":
		c.MissingTokens = splitList(val)
	case "prune_stat":
		c.PruneStat = strings.ToLower(val)
	case "prune_threshold":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil {
			return fmt.Errorf("invalid float for prune_threshold: %w", perr)
		}
		c.PruneThreshold = f
	case "k_min":
		c.KMin, err = atoi()
	case "k_max":
		c.KMax, err = atoi()
	case "final_k":
		c.FinalK, err = atoi()
	case "seed":
		s, perr := strconv.ParseUint(val, 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid seed: %w", perr)
		}
		c.Seed = s
	case "restarts":
		c.Restarts, err = atoi()
	case "max_iter":
		c.MaxIter, err = atoi()
	case "workers":
		c.Workers, err = atoi()
	case "output_dir":
		c.OutputDir = val
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "text", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
