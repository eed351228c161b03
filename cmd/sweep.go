package cmd

import (
	"fmt"
	"text/tabwriter"

	"gonum.org/v1/plot/vg"

	"github.com/KaramelBytes/crimelens-cli/internal/pipeline"
	"github.com/KaramelBytes/crimelens-cli/internal/report"
	"github.com/KaramelBytes/crimelens-cli/internal/ui"
	"github.com/spf13/cobra"
)

var (
	swFlags runFlags
	swPlot  string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep [source]",
	Short: "Print within-cluster dispersion for each k (elbow table)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := requireConfig()
		if err != nil {
			return err
		}
		c, err := swFlags.apply(cmd, base)
		if err != nil {
			return err
		}
		source, err := resolveSource(args, c)
		if err != nil {
			return err
		}
		res, err := runPipeline(cmd.Context(), source, c, func(p *pipeline.Config) { p.SweepOnly = true })
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "k\tdispersion\tshare")
		for _, p := range res.Sweep {
			share := 0.0
			if res.TotalSS > 0 {
				share = p.Dispersion / res.TotalSS
			}
			fmt.Fprintf(w, "%d\t%.6g\t%.3f\n", p.K, p.Dispersion, share)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for _, warn := range res.Warnings {
			ui.Warning("%s", warn)
		}
		if swPlot != "" {
			p, err := report.ElbowPlot(res)
			if err != nil {
				return err
			}
			if err := p.Save(8*vg.Inch, 5*vg.Inch, swPlot); err != nil {
				return fmt.Errorf("save plot: %w", err)
			}
			ui.Success("Wrote %s", swPlot)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	swFlags.bindInput(sweepCmd)
	swFlags.bindSweep(sweepCmd)
	sweepCmd.Flags().StringVar(&swPlot, "plot", "", "also save the elbow chart to this PNG path")
}
