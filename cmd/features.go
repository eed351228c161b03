package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/crimelens-cli/internal/pipeline"
	"github.com/KaramelBytes/crimelens-cli/internal/report"
	"github.com/KaramelBytes/crimelens-cli/internal/ui"
	"github.com/KaramelBytes/crimelens-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	featFlags runFlags
	featAll   bool
	featOut   string
)

var featuresCmd = &cobra.Command{
	Use:   "features [source]",
	Short: "Build the per-group feature table and print it as CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := requireConfig()
		if err != nil {
			return err
		}
		c, err := featFlags.apply(cmd, base)
		if err != nil {
			return err
		}
		source, err := resolveSource(args, c)
		if err != nil {
			return err
		}
		res, err := runPipeline(cmd.Context(), source, c, func(p *pipeline.Config) { p.SkipClustering = true })
		if err != nil {
			return err
		}
		t, name := res.Pruned, report.PrunedFile
		if featAll {
			t, name = res.Features, report.FeaturesFile
		}
		if featOut == "" {
			return t.WriteCSV(cmd.OutOrStdout())
		}
		path := featOut
		if filepath.Ext(path) == "" {
			if err := utils.EnsureDir(path); err != nil {
				return err
			}
			path = filepath.Join(path, name)
		}
		if err := utils.WriteWith(path, func(b *bytes.Buffer) error { return t.WriteCSV(b) }); err != nil {
			return fmt.Errorf("write features: %w", err)
		}
		ui.Success("Wrote %d groups x %d features to %s", t.Nrow(), len(t.Names())-1, path)
		if len(res.Dropped) > 0 && !featAll {
			ui.Info("Dropped %d features: %v", len(res.Dropped), res.Dropped)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	featFlags.bindInput(featuresCmd)
	featuresCmd.Flags().BoolVar(&featAll, "all", false, "emit every feature column, before pruning")
	featuresCmd.Flags().StringVarP(&featOut, "output", "o", "", "write CSV to this file or directory instead of stdout")
}
