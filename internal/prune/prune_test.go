package prune

import (
	"math"
	"reflect"
	"testing"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

func TestMedianIsLower(t *testing.T) {
	cases := []struct {
		in   []float64
		want float64
	}{
		{[]float64{0, 0, 0.3, 0.6}, 0},
		{[]float64{0, 0.1, 0.3, 0.6}, 0.1},
		{[]float64{0.4, 0, 0.2}, 0.2},
		{[]float64{5}, 5},
	}
	for _, c := range cases {
		if got := Median(c.in); got != c.want {
			t.Errorf("Median(%v) = %v, want %v", c.in, got, c.want)
		}
	}
	if !math.IsNaN(Median(nil)) {
		t.Fatalf("median of nothing should be NaN")
	}
}

func TestPruneBoundaries(t *testing.T) {
	tb, err := table.New(
		table.StringCol("group", []string{"1", "2", "3", "4"}),
		// zero in exactly half of the groups: dropped
		table.FloatCol("half_zero", []float64{0, 0.4, 0, 0.2}),
		// positive in half plus one: kept
		table.FloatCol("mostly_positive", []float64{0, 0.4, 0.1, 0.2}),
		// zero everywhere: dropped
		table.FloatCol("never", []float64{0, 0, 0, 0}),
		table.StringCol("label", []string{"x", "y", "z", "w"}),
	)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	res, err := PruneColumns(tb, Median, 0, "group")
	if err != nil {
		t.Fatalf("PruneColumns: %v", err)
	}
	if !reflect.DeepEqual(res.Dropped, []string{"half_zero", "never"}) {
		t.Fatalf("dropped = %v", res.Dropped)
	}
	if !reflect.DeepEqual(res.Table.Names(), []string{"group", "mostly_positive", "label"}) {
		t.Fatalf("kept = %v", res.Table.Names())
	}
	if !tb.Has("half_zero") {
		t.Fatalf("input table was mutated")
	}
}

func TestPruneExemptsNumericKey(t *testing.T) {
	tb, err := table.New(
		table.FloatCol("precinct", []float64{0, 0, 0}),
		table.FloatCol("x", []float64{1, 1, 1}),
	)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	res, err := PruneColumns(tb, Median, 0, "precinct")
	if err != nil {
		t.Fatalf("PruneColumns: %v", err)
	}
	if !res.Table.Has("precinct") {
		t.Fatalf("key column pruned")
	}
}

func TestPruneThresholdIsStrict(t *testing.T) {
	tb, _ := table.New(
		table.StringCol("group", []string{"1", "2"}),
		table.FloatCol("x", []float64{0.5, 0.5}),
	)
	res, err := PruneColumns(tb, Mean, 0.5, "group")
	if err != nil {
		t.Fatalf("PruneColumns: %v", err)
	}
	if res.Table.Has("x") {
		t.Fatalf("column at the threshold should be dropped")
	}
}

func TestByName(t *testing.T) {
	if _, err := ByName("mode"); err == nil {
		t.Fatalf("expected error for unknown statistic")
	}
	if f, err := ByName("MEAN"); err != nil || f([]float64{1, 3}) != 2 {
		t.Fatalf("mean lookup failed: %v", err)
	}
}
