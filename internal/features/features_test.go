package features

import (
	"math"
	"reflect"
	"testing"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

func bucketed(t *testing.T) *table.Table {
	t.Helper()
	tb, err := table.New(
		table.StringCol("group", []string{"A", "A", "B", "B"}),
		table.StringCol("location_bucket", []string{"RESIDENCE", "BUSINESS", "MISSING", "SERVICE"}),
		table.StringCol("time_bucket", []string{"DAWN", "AFTERNOON", "NIGHT", "NIGHT"}),
	)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	return tb
}

func value(t *testing.T, tb *table.Table, group, col string) float64 {
	t.Helper()
	keys, err := tb.Strings("group")
	if err != nil {
		t.Fatalf("group column: %v", err)
	}
	vals, err := tb.Floats(col)
	if err != nil {
		t.Fatalf("column %s: %v", col, err)
	}
	for i, k := range keys {
		if k == group {
			return vals[i]
		}
	}
	t.Fatalf("group %s not found", group)
	return 0
}

func TestBuildFourRecordScenario(t *testing.T) {
	out, err := Build(bucketed(t), DefaultSpec())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	checks := []struct {
		group, col string
		want       float64
	}{
		{"A", "LOC_RESIDENCE", 0.5},
		{"A", "LOC_BUSINESS", 0.5},
		{"A", "LOC_MISSING", 0},
		{"B", "LOC_MISSING", 0.5},
		{"B", "LOC_SERVICE", 0.5},
		{"A", "TIME_DAWN", 0.5},
		{"A", "TIME_AFTERNOON", 0.5},
		{"B", "TIME_NIGHT", 1},
		{"A", "VOLUME_SHARE", 0.5},
		{"B", "VOLUME_SHARE", 0.5},
	}
	for _, c := range checks {
		if got := value(t, out, c.group, c.col); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("%s %s = %v, want %v", c.group, c.col, got, c.want)
		}
	}
}

func TestFrequencyRowsSumToOne(t *testing.T) {
	tb, err := table.New(
		table.StringCol("group", []string{"1", "1", "1", "2", "2", "3", "1", "2"}),
		table.StringCol("loc", []string{"STREET", "ATM", "STREET", "PARK", "STREET", "ATM", "BAR", "PARK"}),
	)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	wide, err := BuildFrequencyFeatures(tb, "group", "loc", "L_")
	if err != nil {
		t.Fatalf("BuildFrequencyFeatures: %v", err)
	}
	cols := Columns(wide, "L_")
	if !reflect.DeepEqual(cols, []string{"L_ATM", "L_BAR", "L_PARK", "L_STREET"}) {
		t.Fatalf("columns = %v", cols)
	}
	sums := make([]float64, wide.Nrow())
	for _, c := range cols {
		vals, _ := wide.Floats(c)
		for i, v := range vals {
			sums[i] += v
		}
	}
	for i, s := range sums {
		if math.Abs(s-1) > 1e-9 {
			t.Fatalf("row %d sums to %v", i, s)
		}
	}
}

func TestMergeDropsGroupsMissingFromAnyTable(t *testing.T) {
	a, _ := table.New(table.StringCol("group", []string{"A", "B", "C"}), table.FloatCol("x", []float64{1, 2, 3}))
	b, _ := table.New(table.StringCol("group", []string{"A", "C"}), table.FloatCol("y", []float64{1, 3}))
	c, _ := table.New(table.StringCol("group", []string{"C", "B", "A"}), table.FloatCol("z", []float64{3, 2, 1}))
	out, err := Merge("group", a, b, c)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	keys, _ := out.Strings("group")
	if !reflect.DeepEqual(keys, []string{"A", "C"}) {
		t.Fatalf("keys = %v, want [A C]", keys)
	}
}

func TestBuildOnEmptyTable(t *testing.T) {
	tb, err := table.New(
		table.StringCol("group", nil),
		table.StringCol("location_bucket", nil),
		table.StringCol("time_bucket", nil),
	)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	out, err := Build(tb, DefaultSpec())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.Nrow() != 0 {
		t.Fatalf("rows = %d, want 0", out.Nrow())
	}
}
