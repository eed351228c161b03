// Package report renders a pipeline result as Markdown, CSV tables and charts.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/crimelens-cli/internal/pipeline"
	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

// Options controls report rendering.
type Options struct {
	// MaxBuckets limits listed buckets per dimension; 0 means 12.
	MaxBuckets int
	// MaxGroups limits listed group assignments; 0 means all.
	MaxGroups int
}

// Markdown renders a compact summary of a run.
func Markdown(r *pipeline.Result, opt Options) string {
	maxBuckets := opt.MaxBuckets
	if maxBuckets <= 0 {
		maxBuckets = 12
	}
	var b strings.Builder
	b.WriteString("[RUN]\n")
	b.WriteString(fmt.Sprintf("Run: %s\n", r.RunID))
	b.WriteString(fmt.Sprintf("Records: %d\n", r.Records))
	if r.Features != nil {
		b.WriteString(fmt.Sprintf("Groups: %d\n", r.Features.Nrow()))
	}
	if r.Elapsed > 0 {
		b.WriteString(fmt.Sprintf("Elapsed: %s\n", r.Elapsed.Round(time.Millisecond)))
	}

	writeBuckets(&b, "LOCATION BUCKETS", r.LocationCounts, r.Records, maxBuckets)
	writeBuckets(&b, "TIME BUCKETS", r.TimeCounts, r.Records, maxBuckets)

	if r.Features != nil {
		b.WriteString("\n[FEATURES]\n")
		b.WriteString(fmt.Sprintf("Columns: %d (kept %d after pruning)\n", len(r.Features.Names())-1, max(len(r.Pruned.Names())-1, 0)))
		if len(r.Dropped) > 0 {
			names := append([]string(nil), r.Dropped...)
			sort.Strings(names)
			if len(names) > 20 {
				names = append(names[:20], fmt.Sprintf("… +%d more", len(r.Dropped)-20))
			}
			b.WriteString("Dropped: ")
			b.WriteString(strings.Join(names, ", "))
			b.WriteString("\n")
		}
	}

	if len(r.Sweep) > 0 {
		b.WriteString("\n[ELBOW]\n")
		b.WriteString(fmt.Sprintf("Total SS (k=1 baseline): %.6g\n", r.TotalSS))
		b.WriteString("| k | dispersion | share of total |\n| --- | --- | --- |\n")
		for _, p := range r.Sweep {
			share := math.NaN()
			if r.TotalSS > 0 {
				share = p.Dispersion / r.TotalSS
			}
			b.WriteString(fmt.Sprintf("| %d | %.6g | %.3f |\n", p.K, p.Dispersion, share))
		}
	}

	if r.Model != nil && r.Centroids != nil {
		b.WriteString("\n[CLUSTERS]\n")
		b.WriteString(fmt.Sprintf("k=%d, dispersion %.6g, %d iterations\n", r.Model.K, r.Model.Dispersion, r.Model.Iterations))
		writeTable(&b, r.Centroids)
		if r.Assignments != nil {
			b.WriteString("\n")
			writeMembers(&b, r.Assignments, r.Points.Key, opt.MaxGroups)
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeBuckets(b *strings.Builder, title string, counts []pipeline.BucketCount, total, limit int) {
	if len(counts) == 0 {
		return
	}
	b.WriteString("\n[" + title + "]\n")
	for i, c := range counts {
		if i == limit {
			b.WriteString(fmt.Sprintf("- … %d more\n", len(counts)-limit))
			break
		}
		pct := 0.0
		if total > 0 {
			pct = float64(c.Count) * 100 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %d (%.1f%%)\n", safeVal(c.Label), c.Count, pct))
	}
}

func writeTable(b *strings.Builder, t *table.Table) {
	names := t.Names()
	b.WriteString("| " + strings.Join(names, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(names)) + "\n")
	cols := make([][]string, len(names))
	for i, n := range names {
		if t.IsNumeric(n) {
			vals, _ := t.Floats(n)
			cols[i] = make([]string, len(vals))
			for j, v := range vals {
				cols[i][j] = fmt.Sprintf("%.4g", v)
			}
			continue
		}
		cols[i], _ = t.Strings(n)
	}
	for r := 0; r < t.Nrow(); r++ {
		cells := make([]string, len(names))
		for c := range names {
			cells[c] = safeVal(cols[c][r])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func writeMembers(b *strings.Builder, assign *table.Table, key string, limit int) {
	keys, _ := assign.Strings(key)
	ids, _ := assign.Strings("cluster")
	members := map[string][]string{}
	for i, k := range keys {
		members[ids[i]] = append(members[ids[i]], k)
	}
	clusters := make([]string, 0, len(members))
	for c := range members {
		clusters = append(clusters, c)
	}
	sort.Strings(clusters)
	for _, c := range clusters {
		m := members[c]
		if limit > 0 && len(m) > limit {
			m = append(m[:limit:limit], fmt.Sprintf("… +%d", len(members[c])-limit))
		}
		b.WriteString(fmt.Sprintf("- cluster %s: %s\n", c, strings.Join(m, ", ")))
	}
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
