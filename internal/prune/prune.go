// Package prune drops feature columns whose central tendency across groups
// does not clear a threshold.
package prune

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

// StatFunc summarizes one column's values across groups.
type StatFunc func(values []float64) float64

// Median is the lower median: for an even count it is the smaller of the two
// middle values, so a column that is zero in half the groups has median 0.
func Median(values []float64) float64 {
	x := finite(values)
	if len(x) == 0 {
		return math.NaN()
	}
	sort.Float64s(x)
	return stat.Quantile(0.5, stat.Empirical, x, nil)
}

// Mean is the arithmetic mean of the finite values.
func Mean(values []float64) float64 {
	x := finite(values)
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// ByName resolves a statistic from configuration.
func ByName(name string) (StatFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "median":
		return Median, nil
	case "mean":
		return Mean, nil
	default:
		return nil, fmt.Errorf("unknown prune statistic %q (use median or mean)", name)
	}
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Result is the pruned table plus what was dropped.
type Result struct {
	Table   *table.Table
	Dropped []string
	Stats   map[string]float64
}

// PruneColumns keeps a numeric column iff stat(values) > threshold. Columns in
// exempt and non-numeric columns are always kept. A table without rows is
// returned unchanged since no statistic is defined.
func PruneColumns(t *table.Table, statFn StatFunc, threshold float64, exempt ...string) (*Result, error) {
	res := &Result{Table: t, Stats: map[string]float64{}}
	if t.Nrow() == 0 {
		return res, nil
	}
	skip := make(map[string]struct{}, len(exempt))
	for _, e := range exempt {
		skip[e] = struct{}{}
	}
	for _, col := range t.Names() {
		if _, ok := skip[col]; ok || !t.IsNumeric(col) {
			continue
		}
		vals, err := t.Floats(col)
		if err != nil {
			return nil, err
		}
		s := statFn(vals)
		res.Stats[col] = s
		if !(s > threshold) {
			res.Dropped = append(res.Dropped, col)
		}
	}
	out, err := t.Drop(res.Dropped...)
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	res.Table = out
	return res, nil
}
