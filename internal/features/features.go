// Package features builds one wide feature row per group from categorical
// record counts.
package features

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

const (
	countCol = "__count"
	freqCol  = "__freq"
)

// BuildFrequencyFeatures counts records per (groupKey, categoryCol), divides
// each count by its group's total and pivots to one row per group with one
// column per category value (named prefix+value). Categories a group never
// saw are filled with 0, so each row sums to 1.
func BuildFrequencyFeatures(t *table.Table, groupKey, categoryCol, prefix string) (*table.Table, error) {
	counts, err := t.GroupByAggregate([]string{groupKey, categoryCol}, table.Count(countCol))
	if err != nil {
		return nil, fmt.Errorf("frequency features %s: %w", categoryCol, err)
	}
	keys, _ := counts.Strings(groupKey)
	n, _ := counts.Floats(countCol)

	totals := make(map[string]float64)
	for i, k := range keys {
		totals[k] += n[i]
	}
	freq := make([]float64, len(keys))
	for i, k := range keys {
		freq[i] = n[i] / totals[k]
	}
	withFreq, err := counts.WithColumn(table.FloatCol(freqCol, freq))
	if err != nil {
		return nil, err
	}
	wide, err := withFreq.Pivot(groupKey, categoryCol, freqCol, 0, func(v string) string { return prefix + v })
	if err != nil {
		return nil, fmt.Errorf("frequency features %s: %w", categoryCol, err)
	}
	return wide, nil
}

// BuildVolumeShare returns, per group, its record count divided by the total
// record count, in a single column named column.
func BuildVolumeShare(t *table.Table, groupKey, column string) (*table.Table, error) {
	total := float64(t.Nrow())
	share := table.Aggregation{Name: column, Reduce: func(g *table.Table) (float64, error) {
		return float64(g.Nrow()) / total, nil
	}}
	out, err := t.GroupByAggregate([]string{groupKey}, share)
	if err != nil {
		return nil, fmt.Errorf("volume share: %w", err)
	}
	return out, nil
}

// Merge inner-joins the tables on key. Groups missing from any table are dropped.
func Merge(key string, tables ...*table.Table) (*table.Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("merge: no tables")
	}
	out := tables[0]
	for _, t := range tables[1:] {
		var err error
		out, err = out.JoinOnKey(t, key)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	return out, nil
}

// Spec names the columns the feature builder reads and writes.
type Spec struct {
	GroupKey       string
	LocationCol    string
	TimeCol        string
	LocationPrefix string
	TimePrefix     string
	VolumeCol      string
}

// DefaultSpec matches the canonical column names produced by dataset.Prepare.
func DefaultSpec() Spec {
	return Spec{
		GroupKey:       "group",
		LocationCol:    "location_bucket",
		TimeCol:        "time_bucket",
		LocationPrefix: "LOC_",
		TimePrefix:     "TIME_",
		VolumeCol:      "VOLUME_SHARE",
	}
}

// Build produces the merged feature table: group key, volume share, location
// frequencies, time-bucket frequencies.
func Build(t *table.Table, s Spec) (*table.Table, error) {
	volume, err := BuildVolumeShare(t, s.GroupKey, s.VolumeCol)
	if err != nil {
		return nil, err
	}
	loc, err := BuildFrequencyFeatures(t, s.GroupKey, s.LocationCol, s.LocationPrefix)
	if err != nil {
		return nil, err
	}
	tod, err := BuildFrequencyFeatures(t, s.GroupKey, s.TimeCol, s.TimePrefix)
	if err != nil {
		return nil, err
	}
	return Merge(s.GroupKey, volume, loc, tod)
}

// Columns returns the feature column names starting with prefix, in table order.
func Columns(t *table.Table, prefix string) []string {
	var out []string
	for _, n := range t.Names() {
		if len(n) >= len(prefix) && n[:len(prefix)] == prefix {
			out = append(out, n)
		}
	}
	return out
}
