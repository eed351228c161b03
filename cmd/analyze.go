package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/crimelens-cli/internal/pipeline"
	"github.com/KaramelBytes/crimelens-cli/internal/report"
	"github.com/KaramelBytes/crimelens-cli/internal/ui"
	"github.com/spf13/cobra"
)

var (
	anaFlags     runFlags
	anaStdout    bool
	anaMaxGroups int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [source]",
	Short: "Run the full pipeline and write features, clusters, charts and a report",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := requireConfig()
		if err != nil {
			return err
		}
		c, err := anaFlags.apply(cmd, base)
		if err != nil {
			return err
		}
		source, err := resolveSource(args, c)
		if err != nil {
			return err
		}
		res, err := runPipeline(cmd.Context(), source, c, nil)
		if err != nil {
			return err
		}
		opt := report.Options{MaxGroups: anaMaxGroups}
		if anaStdout {
			fmt.Fprintln(cmd.OutOrStdout(), report.Markdown(res, opt))
			return nil
		}
		written, err := report.WriteArtifacts(c.OutputDir, res, opt)
		if err != nil {
			return fmt.Errorf("write artifacts: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Box("crimelens "+res.RunID, summaryLines(res)))
		for _, p := range written {
			ui.Success("Wrote %s", p)
		}
		for _, w := range res.Warnings {
			ui.Warning("%s", w)
		}
		return nil
	},
}

func summaryLines(res *pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "records   %d\n", res.Records)
	if res.Features != nil {
		fmt.Fprintf(&b, "groups    %d\n", res.Features.Nrow())
		fmt.Fprintf(&b, "features  %d kept, %d dropped\n", len(res.Pruned.Names())-1, len(res.Dropped))
	}
	if res.Model != nil {
		fmt.Fprintf(&b, "clusters  k=%d sizes %v\n", res.Model.K, res.Model.Sizes)
		fmt.Fprintf(&b, "dispersion %.6g", res.Model.Dispersion)
	}
	return strings.TrimRight(b.String(), "\n")
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	anaFlags.bindInput(analyzeCmd)
	anaFlags.bindSweep(analyzeCmd)
	analyzeCmd.Flags().IntVar(&anaFlags.finalK, "k", 0, "number of clusters in the final fit")
	analyzeCmd.Flags().StringVarP(&anaFlags.outputDir, "output-dir", "o", "", "directory for artifacts (overrides config)")
	analyzeCmd.Flags().BoolVar(&anaStdout, "stdout", false, "print the Markdown report instead of writing artifacts")
	analyzeCmd.Flags().IntVar(&anaMaxGroups, "max-groups", 0, "limit listed group members per cluster (0 = all)")
}
