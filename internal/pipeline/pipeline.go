// Package pipeline chains the analysis stages. Each stage takes the previous
// stage's table and returns a new one; nothing is shared between stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/crimelens-cli/internal/categorize"
	"github.com/KaramelBytes/crimelens-cli/internal/cluster"
	"github.com/KaramelBytes/crimelens-cli/internal/dataset"
	"github.com/KaramelBytes/crimelens-cli/internal/features"
	"github.com/KaramelBytes/crimelens-cli/internal/prune"
	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

// Config holds every tunable of a run.
type Config struct {
	Columns        dataset.Columns
	LocationGroups []categorize.RuleGroup
	MissingTokens  []string
	HourBands      []categorize.HourBand
	PruneStat      string
	PruneThreshold float64
	KMin, KMax     int
	FinalK         int
	Cluster        cluster.Options
	// SkipClustering stops after pruning (used by the features command).
	SkipClustering bool
	// SweepOnly runs the dispersion sweep but no final fit.
	SweepOnly bool
}

// DefaultConfig returns the settings used for the NYPD complaint data.
func DefaultConfig() Config {
	return Config{
		Columns:        dataset.DefaultColumns(),
		LocationGroups: categorize.DefaultLocationGroups(),
		MissingTokens:  []string{"(null)"},
		HourBands:      categorize.DefaultHourBands(),
		PruneStat:      "median",
		PruneThreshold: 0,
		KMin:           1,
		KMax:           9,
		FinalK:         2,
		Cluster:        cluster.DefaultOptions(),
	}
}

// BucketCount is the number of records in one bucket.
type BucketCount struct {
	Label string
	Count int
}

// Result is everything a run produces for the report surface.
type Result struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration

	Records        int
	LocationCounts []BucketCount
	TimeCounts     []BucketCount

	Features   *table.Table
	Pruned     *table.Table
	Dropped    []string
	PruneStats map[string]float64

	Points      *cluster.Points
	TotalSS     float64
	Sweep       []cluster.SweepPoint
	Model       *cluster.Model
	Assignments *table.Table
	Centroids   *table.Table

	Warnings []string
}

// Stage names, used in logs and errors.
const (
	StagePrepare  = "prepare"
	StageLocation = "categorize-location"
	StageTime     = "categorize-time"
	StageFeatures = "features"
	StagePrune    = "prune"
	StageSweep    = "sweep"
	StageFit      = "fit"
)

const (
	locationBucket = "location_bucket"
	timeBucket     = "time_bucket"
)

// Run executes the stages in order over raw.
func Run(ctx context.Context, raw *table.Table, cfg Config) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := slog.With("run_id", res.RunID)
	defer func() { res.Elapsed = time.Since(res.StartedAt) }()

	prep, err := dataset.Prepare(raw, cfg.Columns)
	if prep != nil {
		res.Warnings = append(res.Warnings, prep.Warnings...)
	}
	if err != nil {
		return nil, stageErr(StagePrepare, err)
	}
	t := prep.Table
	res.Records = t.Nrow()
	log.Info("prepared records", "rows", t.Nrow(), "dropped", prep.DroppedRows)

	loc := categorize.NewLocation(cfg.LocationGroups, cfg.MissingTokens...)
	t, err = categorize.Apply(t, dataset.LocationCol, locationBucket, func(v string) (string, error) {
		return loc.Label(v), nil
	})
	if err != nil {
		return nil, stageErr(StageLocation, err)
	}
	if res.LocationCounts, err = countBuckets(t, locationBucket); err != nil {
		return nil, stageErr(StageLocation, err)
	}
	log.Debug("location buckets", "distinct", len(res.LocationCounts))

	tod, err := categorize.NewTimeOfDay(cfg.HourBands)
	if err != nil {
		return nil, stageErr(StageTime, err)
	}
	t, err = categorize.Apply(t, dataset.HourCol, timeBucket, func(v string) (string, error) {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return "", err
		}
		return tod.Label(int(h))
	})
	if err != nil {
		return nil, stageErr(StageTime, err)
	}
	if res.TimeCounts, err = countBuckets(t, timeBucket); err != nil {
		return nil, stageErr(StageTime, err)
	}

	spec := features.DefaultSpec()
	spec.GroupKey = dataset.GroupCol
	spec.LocationCol = locationBucket
	spec.TimeCol = timeBucket
	feat, err := features.Build(t, spec)
	if err != nil {
		return nil, stageErr(StageFeatures, err)
	}
	feat, err = feat.SortBy(spec.GroupKey)
	if err != nil {
		return nil, stageErr(StageFeatures, err)
	}
	res.Features = feat
	log.Info("built features", "groups", feat.Nrow(), "columns", len(feat.Names())-1)

	statFn, err := prune.ByName(cfg.PruneStat)
	if err != nil {
		return nil, stageErr(StagePrune, err)
	}
	pr, err := prune.PruneColumns(feat, statFn, cfg.PruneThreshold, spec.GroupKey)
	if err != nil {
		return nil, stageErr(StagePrune, err)
	}
	res.Pruned, res.Dropped, res.PruneStats = pr.Table, pr.Dropped, pr.Stats
	log.Info("pruned features", "dropped", len(pr.Dropped), "kept", len(pr.Table.Names())-1)

	if cfg.SkipClustering {
		return res, nil
	}
	if err := runClustering(ctx, res, cfg, spec.GroupKey, log); err != nil {
		return nil, err
	}
	return res, nil
}

func runClustering(ctx context.Context, res *Result, cfg Config, key string, log *slog.Logger) error {
	pts, err := cluster.FromTable(res.Pruned, key)
	if err != nil {
		return stageErr(StageSweep, err)
	}
	res.Points = pts
	if res.TotalSS, err = cluster.TotalSumOfSquares(pts.Data); err != nil {
		return stageErr(StageSweep, err)
	}

	kMax := cfg.KMax
	if d := cluster.DistinctPoints(pts.Data); kMax > d {
		res.Warnings = append(res.Warnings, fmt.Sprintf("sweep capped at k=%d (only %d distinct groups)", d, d))
		kMax = d
	}
	kMin := cfg.KMin
	if kMin < 1 {
		kMin = 1
	}
	if kMin <= kMax {
		res.Sweep, err = cluster.SweepDispersion(ctx, pts.Data, kMin, kMax, cfg.Cluster)
		if err != nil {
			return stageErr(StageSweep, err)
		}
		log.Info("dispersion sweep done", "k_min", kMin, "k_max", kMax)
	} else {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no dispersion sweep ran: k_min=%d exceeds the %d distinct groups", kMin, kMax))
		log.Warn("dispersion sweep skipped", "k_min", kMin, "distinct", kMax)
	}
	if cfg.SweepOnly {
		return nil
	}

	m, err := cluster.FitClusters(pts.Data, cfg.FinalK, cfg.Cluster)
	if err != nil {
		return stageErr(StageFit, err)
	}
	res.Model = m
	if res.Assignments, err = m.AssignmentTable(pts); err != nil {
		return stageErr(StageFit, err)
	}
	if res.Centroids, err = m.CentroidTable(pts); err != nil {
		return stageErr(StageFit, err)
	}
	log.Info("fitted clusters", "k", m.K, "dispersion", m.Dispersion, "iterations", m.Iterations)
	return nil
}

// StageError tags an error with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

func countBuckets(t *table.Table, col string) ([]BucketCount, error) {
	vals, err := t.Strings(col)
	if err != nil {
		return nil, err
	}
	m := map[string]int{}
	for _, v := range vals {
		m[v]++
	}
	out := make([]BucketCount, 0, len(m))
	for k, v := range m {
		out = append(out, BucketCount{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Label < out[j].Label
		}
		return out[i].Count > out[j].Count
	})
	return out, nil
}
