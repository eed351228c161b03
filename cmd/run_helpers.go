package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cfgpkg "github.com/KaramelBytes/crimelens-cli/internal/config"
	"github.com/KaramelBytes/crimelens-cli/internal/dataset"
	"github.com/KaramelBytes/crimelens-cli/internal/pipeline"
	"github.com/spf13/cobra"
)

// runFlags are the per-command overrides shared by analyze, sweep and features.
type runFlags struct {
	delimiter   string
	sheet       string
	maxRows     int
	groupCol    string
	locationCol string
	timeCol     string

	pruneStat      string
	pruneThreshold float64

	kMin, kMax int
	finalK     int
	seed       uint64
	restarts   int
	workers    int

	outputDir string
}

func (f *runFlags) bindInput(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default from file extension)")
	fs.StringVar(&f.sheet, "sheet", "", "XLSX worksheet name (default first sheet)")
	fs.IntVar(&f.maxRows, "max-rows", 0, "maximum records to read (0 = unlimited)")
	fs.StringVar(&f.groupCol, "group-col", "", "source column holding the group key")
	fs.StringVar(&f.locationCol, "location-col", "", "source column holding the location description")
	fs.StringVar(&f.timeCol, "time-col", "", "source column holding the time of occurrence")
	fs.StringVar(&f.pruneStat, "prune-stat", "", "column statistic used for pruning: median|mean")
	fs.Float64Var(&f.pruneThreshold, "prune-threshold", 0, "keep a feature only if its statistic exceeds this")
}

func (f *runFlags) bindSweep(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.kMin, "k-min", 0, "smallest k in the dispersion sweep")
	fs.IntVar(&f.kMax, "k-max", 0, "largest k in the dispersion sweep")
	fs.Uint64Var(&f.seed, "seed", 0, "random seed for centroid initialization")
	fs.IntVar(&f.restarts, "restarts", 0, "independently seeded runs per k")
	fs.IntVar(&f.workers, "workers", 0, "concurrent fits during the sweep")
}

// apply returns a copy of c with every changed flag applied.
func (f *runFlags) apply(cmd *cobra.Command, c *cfgpkg.Global) (*cfgpkg.Global, error) {
	out := *c
	fs := cmd.Flags()
	changed := func(name string) bool {
		fl := fs.Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("delimiter") {
		d, err := parseDelimiter(f.delimiter)
		if err != nil {
			return nil, err
		}
		out.Delimiter = d
	}
	if changed("sheet") {
		out.Sheet = f.sheet
	}
	if changed("max-rows") {
		out.MaxRows = f.maxRows
	}
	if changed("group-col") {
		out.Columns.Group = f.groupCol
	}
	if changed("location-col") {
		out.Columns.Location = f.locationCol
	}
	if changed("time-col") {
		out.Columns.Time = f.timeCol
	}
	if changed("prune-stat") {
		out.PruneStat = f.pruneStat
	}
	if changed("prune-threshold") {
		out.PruneThreshold = f.pruneThreshold
	}
	if changed("k-min") {
		out.KMin = f.kMin
	}
	if changed("k-max") {
		out.KMax = f.kMax
	}
	if changed("k") {
		out.FinalK = f.finalK
	}
	if changed("seed") {
		out.Seed = f.seed
	}
	if changed("restarts") {
		out.Restarts = f.restarts
	}
	if changed("workers") {
		out.Workers = f.workers
	}
	if changed("output-dir") {
		out.OutputDir = f.outputDir
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func parseDelimiter(s string) (string, error) {
	switch s {
	case ",", ";", "|":
		return s, nil
	case "\t", "tab", "\\t":
		return "\t", nil
	default:
		return "", fmt.Errorf("unsupported --delimiter: %s", s)
	}
}

// resolveSource picks the positional source or the configured one.
func resolveSource(args []string, c *cfgpkg.Global) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if c.Source != "" {
		return c.Source, nil
	}
	return "", errors.New("no data source: pass a file or URL, or set 'source' in config")
}

// runPipeline loads the source and runs the stages with c.
func runPipeline(ctx context.Context, source string, c *cfgpkg.Global, tweak func(*pipeline.Config)) (*pipeline.Result, error) {
	raw, err := dataset.Load(ctx, source, c.LoadOptions())
	if err != nil {
		return nil, err
	}
	slog.Debug("loaded source", "source", source, "rows", raw.Nrow(), "columns", len(raw.Names()))
	pc := c.Pipeline()
	if tweak != nil {
		tweak(&pc)
	}
	return pipeline.Run(ctx, raw, pc)
}
