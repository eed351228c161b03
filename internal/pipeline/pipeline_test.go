package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/KaramelBytes/crimelens-cli/internal/cluster"
	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

func rawTable(t *testing.T, groups, locs, times []string) *table.Table {
	t.Helper()
	tb, err := table.New(
		table.StringCol("ADDR_PCT_CD", groups),
		table.StringCol("PREM_TYP_DESC", locs),
		table.StringCol("CMPLNT_FR_TM", times),
	)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	return tb
}

func fourRecords(t *testing.T) *table.Table {
	return rawTable(t,
		[]string{"A", "A", "B", "B"},
		[]string{"DWELLING", "GROCERY STORE", "", "ATM"},
		[]string{"02:00:00", "14:00:00", "20:00:00", "20:00:00"},
	)
}

func lookup(t *testing.T, tb *table.Table, group, col string) float64 {
	t.Helper()
	keys, _ := tb.Strings("group")
	vals, err := tb.Floats(col)
	if err != nil {
		t.Fatalf("column %s: %v", col, err)
	}
	for i, k := range keys {
		if k == group {
			return vals[i]
		}
	}
	t.Fatalf("group %s missing", group)
	return 0
}

func TestRunFourRecordFeatures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipClustering = true
	res, err := Run(context.Background(), fourRecords(t), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]map[string]float64{
		"A": {"LOC_RESIDENCE": 0.5, "LOC_BUSINESS": 0.5, "TIME_DAWN": 0.5, "TIME_AFTERNOON": 0.5, "VOLUME_SHARE": 0.5},
		"B": {"LOC_MISSING": 0.5, "LOC_SERVICE": 0.5, "TIME_NIGHT": 1, "VOLUME_SHARE": 0.5},
	}
	for g, cols := range want {
		for c, v := range cols {
			if got := lookup(t, res.Features, g, c); math.Abs(got-v) > 1e-12 {
				t.Errorf("%s %s = %v, want %v", g, c, got, v)
			}
		}
	}
	// With two groups the lower median is the column minimum, so every
	// column that is zero for one group goes.
	if !reflect.DeepEqual(res.Pruned.Names(), []string{"group", "VOLUME_SHARE"}) {
		t.Fatalf("pruned columns = %v", res.Pruned.Names())
	}
	if res.Records != 4 || res.Model != nil {
		t.Fatalf("records=%d model=%v", res.Records, res.Model)
	}
	if res.RunID == "" {
		t.Fatalf("missing run id")
	}
}

func TestRunFailsFastOnTooManyClusters(t *testing.T) {
	cfg := DefaultConfig()
	_, err := Run(context.Background(), fourRecords(t), cfg)
	if !errors.Is(err, cluster.ErrInvalidClusterCount) {
		t.Fatalf("err = %v, want ErrInvalidClusterCount", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageFit {
		t.Fatalf("err = %v, want fit stage error", err)
	}
}

func TestRunEmptyTable(t *testing.T) {
	_, err := Run(context.Background(), rawTable(t, nil, nil, nil), DefaultConfig())
	if !errors.Is(err, cluster.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestRunClustersPrecincts(t *testing.T) {
	var groups, locs, times []string
	add := func(g, loc, tm string, n int) {
		for i := 0; i < n; i++ {
			groups = append(groups, g)
			locs = append(locs, loc)
			times = append(times, tm)
		}
	}
	// Residential, night-heavy precincts.
	for i, g := range []string{"1", "2", "3"} {
		add(g, "RESIDENCE - APT. HOUSE", "22:00:00", 6+i)
		add(g, "STREET", "23:30:00", 2)
		add(g, "GROCERY STORE", "13:00:00", 1)
	}
	// Commercial, daytime-heavy precincts.
	for i, g := range []string{"4", "5", "6"} {
		add(g, "DEPARTMENT STORE", "13:00:00", 6+i)
		add(g, "STREET", "09:00:00", 2)
		add(g, "RESIDENCE-HOUSE", "22:00:00", 1)
	}
	cfg := DefaultConfig()
	cfg.KMax = 4
	res, err := Run(context.Background(), rawTable(t, groups, locs, times), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Sweep) != 4 || res.Sweep[0].K != 1 {
		t.Fatalf("sweep = %+v", res.Sweep)
	}
	if math.Abs(res.Sweep[0].Dispersion-res.TotalSS) > 1e-9 {
		t.Fatalf("k=1 dispersion %v != total SS %v", res.Sweep[0].Dispersion, res.TotalSS)
	}
	ids, _ := res.Assignments.Strings("cluster")
	keys, _ := res.Assignments.Strings("group")
	byGroup := map[string]string{}
	for i, k := range keys {
		byGroup[k] = ids[i]
	}
	if byGroup["1"] != byGroup["2"] || byGroup["2"] != byGroup["3"] ||
		byGroup["4"] != byGroup["5"] || byGroup["5"] != byGroup["6"] || byGroup["1"] == byGroup["4"] {
		t.Fatalf("assignments = %v", byGroup)
	}
	if res.Centroids.Nrow() != 2 {
		t.Fatalf("centroid rows = %d", res.Centroids.Nrow())
	}
	for _, c := range res.LocationCounts {
		if c.Label == "" {
			t.Fatalf("empty bucket label in %s", fmt.Sprint(res.LocationCounts))
		}
	}
}

func TestRunSweepOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepOnly = true
	// Both groups prune down to VOLUME_SHARE 0.5, one distinct point, so the
	// sweep is capped at k=1 and FinalK is never checked.
	cfg.FinalK = 10
	res, err := Run(context.Background(), fourRecords(t), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Model != nil || res.Assignments != nil {
		t.Fatalf("sweep-only run fitted a model")
	}
	if len(res.Sweep) != 1 || len(res.Warnings) == 0 {
		t.Fatalf("sweep=%+v warnings=%v", res.Sweep, res.Warnings)
	}
	if res.Sweep[0].Dispersion > 1e-12 {
		t.Fatalf("identical points should have zero dispersion, got %v", res.Sweep[0].Dispersion)
	}
}

func TestRunNotesSkippedSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepOnly = true
	cfg.KMin = 3
	res, err := Run(context.Background(), fourRecords(t), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Sweep) != 0 {
		t.Fatalf("sweep = %+v, want none", res.Sweep)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "no dispersion sweep ran") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestCountBucketsUnknownColumn(t *testing.T) {
	tb := rawTable(t, []string{"A"}, []string{"STREET"}, []string{"01:00"})
	if _, err := countBuckets(tb, "location_bucket"); !errors.Is(err, table.ErrColumnNotFound) {
		t.Fatalf("err = %v, want ErrColumnNotFound", err)
	}
}
