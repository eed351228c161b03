package table

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func mustNew(t *testing.T, cols ...Column) *Table {
	t.Helper()
	tb, err := New(cols...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tb
}

func incidents(t *testing.T) *Table {
	t.Helper()
	return mustNew(t,
		StringCol("group", []string{"B", "A", "A", "B", "A"}),
		StringCol("bucket", []string{"NIGHT", "DAWN", "DAWN", "MORNING", "NIGHT"}),
		FloatCol("weight", []float64{1, 2, 3, 4, 5}),
	)
}

func TestFilterIsPure(t *testing.T) {
	tb := incidents(t)
	out, err := tb.Filter(func(r Row) bool { return r.Get("group") == "A" })
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if out.Nrow() != 3 {
		t.Fatalf("filtered rows = %d, want 3", out.Nrow())
	}
	if tb.Nrow() != 5 {
		t.Fatalf("input mutated: rows = %d", tb.Nrow())
	}
	if !out.IsNumeric("weight") {
		t.Fatalf("weight lost its numeric type")
	}
	w, _ := out.Floats("weight")
	if !reflect.DeepEqual(w, []float64{2, 3, 5}) {
		t.Fatalf("weights = %v", w)
	}
}

func TestFilterNoMatchesKeepsSchema(t *testing.T) {
	out, err := incidents(t).Filter(func(Row) bool { return false })
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if out.Nrow() != 0 {
		t.Fatalf("rows = %d, want 0", out.Nrow())
	}
	if !reflect.DeepEqual(out.Names(), []string{"group", "bucket", "weight"}) {
		t.Fatalf("names = %v", out.Names())
	}
}

func TestGroupByAggregateCountsAndOrders(t *testing.T) {
	sum := Aggregation{Name: "total", Reduce: func(g *Table) (float64, error) {
		w, err := g.Floats("weight")
		if err != nil {
			return 0, err
		}
		var s float64
		for _, v := range w {
			s += v
		}
		return s, nil
	}}
	out, err := incidents(t).GroupByAggregate([]string{"group", "bucket"}, Count("n"), sum)
	if err != nil {
		t.Fatalf("GroupByAggregate: %v", err)
	}
	groups, _ := out.Strings("group")
	buckets, _ := out.Strings("bucket")
	counts, _ := out.Floats("n")
	totals, _ := out.Floats("total")
	wantGroups := []string{"A", "A", "B", "B"}
	wantBuckets := []string{"DAWN", "NIGHT", "MORNING", "NIGHT"}
	if !reflect.DeepEqual(groups, wantGroups) || !reflect.DeepEqual(buckets, wantBuckets) {
		t.Fatalf("keys = %v %v", groups, buckets)
	}
	if !reflect.DeepEqual(counts, []float64{2, 1, 1, 1}) {
		t.Fatalf("counts = %v", counts)
	}
	if !reflect.DeepEqual(totals, []float64{5, 5, 4, 1}) {
		t.Fatalf("totals = %v", totals)
	}
}

func TestGroupByUnknownColumn(t *testing.T) {
	_, err := incidents(t).GroupByAggregate([]string{"precinct"}, Count("n"))
	if !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("err = %v, want ErrColumnNotFound", err)
	}
}

func TestPivotFillsAbsentCombinations(t *testing.T) {
	long := mustNew(t,
		StringCol("group", []string{"A", "A", "B"}),
		StringCol("bucket", []string{"DAWN", "NIGHT", "MORNING"}),
		FloatCol("freq", []float64{0.25, 0.75, 1}),
	)
	wide, err := long.Pivot("group", "bucket", "freq", 0, func(s string) string { return "t_" + s })
	if err != nil {
		t.Fatalf("Pivot: %v", err)
	}
	want := []string{"group", "t_DAWN", "t_MORNING", "t_NIGHT"}
	if !reflect.DeepEqual(wide.Names(), want) {
		t.Fatalf("names = %v, want %v", wide.Names(), want)
	}
	morning, _ := wide.Floats("t_MORNING")
	if !reflect.DeepEqual(morning, []float64{0, 1}) {
		t.Fatalf("t_MORNING = %v", morning)
	}
	night, _ := wide.Floats("t_NIGHT")
	if !reflect.DeepEqual(night, []float64{0.75, 0}) {
		t.Fatalf("t_NIGHT = %v", night)
	}
}

func TestPivotRejectsDuplicates(t *testing.T) {
	long := mustNew(t,
		StringCol("group", []string{"A", "A"}),
		StringCol("bucket", []string{"DAWN", "DAWN"}),
		FloatCol("freq", []float64{1, 1}),
	)
	if _, err := long.Pivot("group", "bucket", "freq", 0, nil); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
}

func TestJoinOnKeyIsInner(t *testing.T) {
	left := mustNew(t,
		StringCol("group", []string{"A", "B", "C"}),
		FloatCol("x", []float64{1, 2, 3}),
	)
	right := mustNew(t,
		StringCol("group", []string{"C", "A", "D"}),
		FloatCol("y", []float64{30, 10, 40}),
	)
	out, err := left.JoinOnKey(right, "group")
	if err != nil {
		t.Fatalf("JoinOnKey: %v", err)
	}
	keys, _ := out.Strings("group")
	if !reflect.DeepEqual(keys, []string{"A", "C"}) {
		t.Fatalf("keys = %v, want [A C]", keys)
	}
	y, _ := out.Floats("y")
	if !reflect.DeepEqual(y, []float64{10, 30}) {
		t.Fatalf("y = %v", y)
	}
}

func TestJoinOnKeyRejectsClashingColumns(t *testing.T) {
	left := mustNew(t, StringCol("group", []string{"A"}), FloatCol("x", []float64{1}))
	right := mustNew(t, StringCol("group", []string{"A"}), FloatCol("x", []float64{2}))
	if _, err := left.JoinOnKey(right, "group"); !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("err = %v, want ErrDuplicateColumn", err)
	}
}

func TestReadCSVKeepsText(t *testing.T) {
	in := "ADDR_PCT_CD;PREM_TYP_DESC\n014;STREET\n075;\n"
	tb, err := ReadCSV(strings.NewReader(in), ReadOptions{Delimiter: ';'})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	codes, _ := tb.Strings("ADDR_PCT_CD")
	if !reflect.DeepEqual(codes, []string{"014", "075"}) {
		t.Fatalf("codes = %v", codes)
	}
	if tb.IsNumeric("ADDR_PCT_CD") {
		t.Fatalf("codes should stay text")
	}
}

func TestReadCSVHeaderOnly(t *testing.T) {
	tb, err := ReadCSV(strings.NewReader("ADDR_PCT_CD,PREM_TYP_DESC,CMPLNT_FR_TM\n"), ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if tb.Nrow() != 0 || !reflect.DeepEqual(tb.Names(), []string{"ADDR_PCT_CD", "PREM_TYP_DESC", "CMPLNT_FR_TM"}) {
		t.Fatalf("rows=%d names=%v", tb.Nrow(), tb.Names())
	}
	if _, err := ReadCSV(strings.NewReader(""), ReadOptions{}); !errors.Is(err, ErrNoColumns) {
		t.Fatalf("empty input err = %v, want ErrNoColumns", err)
	}
}

func TestRenameSelectDrop(t *testing.T) {
	tb := incidents(t)
	r, err := tb.Rename("bucket", "time_bucket")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	s, err := r.Select("time_bucket", "group")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !reflect.DeepEqual(s.Names(), []string{"time_bucket", "group"}) {
		t.Fatalf("names = %v", s.Names())
	}
	d, err := r.Drop("weight")
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if d.Has("weight") || !tb.Has("weight") {
		t.Fatalf("drop leaked into input or did not drop")
	}
}
