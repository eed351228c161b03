package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/crimelens-cli/internal/categorize"
	"github.com/KaramelBytes/crimelens-cli/internal/cluster"
	"github.com/KaramelBytes/crimelens-cli/internal/dataset"
	"github.com/KaramelBytes/crimelens-cli/internal/pipeline"
	"github.com/KaramelBytes/crimelens-cli/internal/prune"
)

// Global configuration structure.
type Global struct {
	// Input
	Source    string          `mapstructure:"source" yaml:"source"`
	Delimiter string          `mapstructure:"delimiter" yaml:"delimiter"`
	Sheet     string          `mapstructure:"sheet" yaml:"sheet"`
	MaxRows   int             `mapstructure:"max_rows" yaml:"max_rows"`
	Columns   dataset.Columns `mapstructure:"columns" yaml:"columns"`

	// Categorization
	LocationGroups []categorize.RuleGroup `mapstructure:"location_groups" yaml:"location_groups"`
	MissingTokens  []string               `mapstructure:"missing_tokens" yaml:"missing_tokens"`
	HourBands      []categorize.HourBand  `mapstructure:"hour_bands" yaml:"hour_bands"`

	// Pruning
	PruneStat      string  `mapstructure:"prune_stat" yaml:"prune_stat"`
	PruneThreshold float64 `mapstructure:"prune_threshold" yaml:"prune_threshold"`

	// Clustering
	KMin     int    `mapstructure:"k_min" yaml:"k_min"`
	KMax     int    `mapstructure:"k_max" yaml:"k_max"`
	FinalK   int    `mapstructure:"final_k" yaml:"final_k"`
	Seed     uint64 `mapstructure:"seed" yaml:"seed"`
	Restarts int    `mapstructure:"restarts" yaml:"restarts"`
	MaxIter  int    `mapstructure:"max_iter" yaml:"max_iter"`
	Workers  int    `mapstructure:"workers" yaml:"workers"`

	// Output
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`

	// HTTP configuration
	HTTPTimeoutSec int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Dir returns ~/.crimelens.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".crimelens"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.crimelens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Command flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CRIMELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	d := pipeline.DefaultConfig()
	v.SetDefault("source", "")
	v.SetDefault("delimiter", "")
	v.SetDefault("sheet", "")
	v.SetDefault("max_rows", 0)
	v.SetDefault("columns.group", d.Columns.Group)
	v.SetDefault("columns.location", d.Columns.Location)
	v.SetDefault("columns.time", d.Columns.Time)
	v.SetDefault("location_groups", d.LocationGroups)
	v.SetDefault("missing_tokens", d.MissingTokens)
	v.SetDefault("hour_bands", d.HourBands)
	v.SetDefault("prune_stat", d.PruneStat)
	v.SetDefault("prune_threshold", d.PruneThreshold)
	v.SetDefault("k_min", d.KMin)
	v.SetDefault("k_max", d.KMax)
	v.SetDefault("final_k", d.FinalK)
	v.SetDefault("seed", d.Cluster.Seed)
	v.SetDefault("restarts", d.Cluster.Restarts)
	v.SetDefault("max_iter", d.Cluster.MaxIter)
	v.SetDefault("workers", d.Cluster.Workers)
	v.SetDefault("output_dir", "crimelens-out")
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Validate rejects settings no run could use.
func (c *Global) Validate() error {
	if c.KMin < 1 {
		return fmt.Errorf("k_min must be >= 1, got %d", c.KMin)
	}
	if c.KMax < c.KMin {
		return fmt.Errorf("k_max (%d) must be >= k_min (%d)", c.KMax, c.KMin)
	}
	if c.FinalK < 1 {
		return fmt.Errorf("final_k must be >= 1, got %d", c.FinalK)
	}
	if len([]rune(c.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if _, err := prune.ByName(c.PruneStat); err != nil {
		return err
	}
	if len(c.HourBands) == 0 {
		return nil
	}
	return categorize.ValidateBands(c.HourBands)
}

// Pipeline converts the configuration into pipeline settings.
func (c *Global) Pipeline() pipeline.Config {
	p := pipeline.DefaultConfig()
	p.Columns = c.Columns
	if len(c.LocationGroups) > 0 {
		p.LocationGroups = c.LocationGroups
	}
	p.MissingTokens = c.MissingTokens
	if len(c.HourBands) > 0 {
		p.HourBands = c.HourBands
	}
	p.PruneStat = c.PruneStat
	p.PruneThreshold = c.PruneThreshold
	p.KMin, p.KMax, p.FinalK = c.KMin, c.KMax, c.FinalK
	p.Cluster = cluster.Options{
		Restarts: c.Restarts,
		MaxIter:  c.MaxIter,
		Tol:      p.Cluster.Tol,
		Seed:     c.Seed,
		Workers:  c.Workers,
	}
	return p
}

// LoadOptions converts the input settings into dataset load options.
func (c *Global) LoadOptions() dataset.LoadOptions {
	o := dataset.LoadOptions{MaxRows: c.MaxRows, Sheet: c.Sheet}
	if r := []rune(c.Delimiter); len(r) == 1 {
		o.Delimiter = r[0]
	}
	if c.HTTPTimeoutSec > 0 {
		o.HTTPTimeout = time.Duration(c.HTTPTimeoutSec) * time.Second
	}
	return o
}
