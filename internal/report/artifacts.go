package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/KaramelBytes/crimelens-cli/internal/pipeline"
	"github.com/KaramelBytes/crimelens-cli/internal/table"
	"github.com/KaramelBytes/crimelens-cli/internal/utils"
)

// Artifact file names inside the output directory.
const (
	FeaturesFile    = "features.csv"
	PrunedFile      = "features_pruned.csv"
	AssignmentsFile = "assignments.csv"
	CentroidsFile   = "centroids.csv"
	ReportFile      = "report.md"
	SummaryFile     = "run.json"
	ElbowChart      = "elbow.png"
	LocationChart   = "location_buckets.png"
	TimeChart       = "time_buckets.png"
)

// Summary is the machine-readable run digest written to run.json.
type Summary struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	Records     int            `json:"records"`
	Groups      int            `json:"groups"`
	Features    []string       `json:"features"`
	Dropped     []string       `json:"dropped"`
	Sweep       []SweepEntry   `json:"sweep,omitempty"`
	K           int            `json:"k,omitempty"`
	Dispersion  float64        `json:"dispersion,omitempty"`
	ClusterSize []int          `json:"cluster_sizes,omitempty"`
	Buckets     map[string]int `json:"location_buckets"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// SweepEntry is one elbow point in run.json.
type SweepEntry struct {
	K          int     `json:"k"`
	Dispersion float64 `json:"dispersion"`
}

// NewSummary digests a result.
func NewSummary(r *pipeline.Result) Summary {
	s := Summary{
		RunID:     r.RunID,
		StartedAt: r.StartedAt,
		Records:   r.Records,
		Dropped:   r.Dropped,
		Buckets:   map[string]int{},
		Warnings:  r.Warnings,
	}
	if r.Features != nil {
		s.Groups = r.Features.Nrow()
	}
	if r.Pruned != nil {
		for _, n := range r.Pruned.Names() {
			if r.Pruned.IsNumeric(n) {
				s.Features = append(s.Features, n)
			}
		}
	}
	for _, p := range r.Sweep {
		s.Sweep = append(s.Sweep, SweepEntry{K: p.K, Dispersion: p.Dispersion})
	}
	if r.Model != nil {
		s.K = r.Model.K
		s.Dispersion = r.Model.Dispersion
		s.ClusterSize = r.Model.Sizes
	}
	for _, c := range r.LocationCounts {
		s.Buckets[c.Label] = c.Count
	}
	return s
}

// WriteArtifacts writes every available output of a run into dir and returns
// the written paths.
func WriteArtifacts(dir string, r *pipeline.Result, opt Options) ([]string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var written []string
	put := func(name string, fn func(*bytes.Buffer) error) error {
		p := filepath.Join(dir, name)
		if err := utils.WriteWith(p, fn); err != nil {
			return err
		}
		written = append(written, p)
		return nil
	}
	tables := []struct {
		name string
		t    *table.Table
	}{
		{FeaturesFile, r.Features},
		{PrunedFile, r.Pruned},
		{AssignmentsFile, r.Assignments},
		{CentroidsFile, r.Centroids},
	}
	for _, tb := range tables {
		if tb.t == nil {
			continue
		}
		t := tb.t
		if err := put(tb.name, func(b *bytes.Buffer) error { return t.WriteCSV(b) }); err != nil {
			return written, err
		}
	}
	if err := put(ReportFile, func(b *bytes.Buffer) error {
		_, err := b.WriteString(Markdown(r, opt))
		return err
	}); err != nil {
		return written, err
	}
	if err := put(SummaryFile, func(b *bytes.Buffer) error {
		js, err := utils.PrettyJSON(NewSummary(r))
		if err != nil {
			return err
		}
		_, err = b.Write(js)
		return err
	}); err != nil {
		return written, err
	}

	if len(r.Sweep) > 0 {
		if err := savePlot(dir, ElbowChart, &written, func() (*plot.Plot, error) { return ElbowPlot(r) }); err != nil {
			return written, err
		}
	}
	maxBuckets := opt.MaxBuckets
	if maxBuckets <= 0 {
		maxBuckets = 12
	}
	if len(r.LocationCounts) > 0 {
		if err := savePlot(dir, LocationChart, &written, func() (*plot.Plot, error) {
			return BucketPlot("Records per location bucket", r.LocationCounts, maxBuckets)
		}); err != nil {
			return written, err
		}
	}
	if len(r.TimeCounts) > 0 {
		if err := savePlot(dir, TimeChart, &written, func() (*plot.Plot, error) {
			return BucketPlot("Records per time-of-day bucket", r.TimeCounts, maxBuckets)
		}); err != nil {
			return written, err
		}
	}
	return written, nil
}

func savePlot(dir, name string, written *[]string, build func() (*plot.Plot, error)) error {
	p, err := build()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	*written = append(*written, path)
	return nil
}

// ElbowPlot draws dispersion against k.
func ElbowPlot(r *pipeline.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Elbow: within-cluster dispersion by k"
	p.X.Label.Text = "k"
	p.Y.Label.Text = "dispersion"
	pts := make(plotter.XYs, len(r.Sweep))
	for i, s := range r.Sweep {
		pts[i].X = float64(s.K)
		pts[i].Y = s.Dispersion
	}
	if err := plotutil.AddLinePoints(p, "dispersion", pts); err != nil {
		return nil, err
	}
	return p, nil
}

// BucketPlot draws a bar per bucket, limited to the largest limit buckets.
func BucketPlot(title string, counts []pipeline.BucketCount, limit int) (*plot.Plot, error) {
	if len(counts) > limit {
		counts = counts[:limit]
	}
	vals := make(plotter.Values, len(counts))
	names := make([]string, len(counts))
	for i, c := range counts {
		vals[i] = float64(c.Count)
		names[i] = c.Label
	}
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "records"
	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return nil, err
	}
	bars.Color = plotutil.Color(0)
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = 0.6
	return p, nil
}
