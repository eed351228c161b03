package cluster

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/KaramelBytes/crimelens-cli/internal/table"
)

// Points is the numeric matrix handed to k-means, with its row and column labels.
type Points struct {
	Key      string
	Labels   []string
	Features []string
	Data     *mat.Dense
}

// FromTable takes every numeric column except key as a feature. Data is nil
// when the table has no rows or no feature columns.
func FromTable(t *table.Table, key string) (*Points, error) {
	labels, err := t.Strings(key)
	if err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}
	p := &Points{Key: key, Labels: labels}
	for _, n := range t.Names() {
		if n != key && t.IsNumeric(n) {
			p.Features = append(p.Features, n)
		}
	}
	if len(labels) == 0 || len(p.Features) == 0 {
		return p, nil
	}
	p.Data = mat.NewDense(len(labels), len(p.Features), nil)
	for j, f := range p.Features {
		vals, err := t.Floats(f)
		if err != nil {
			return nil, err
		}
		p.Data.SetCol(j, vals)
	}
	return p, nil
}

// AssignmentTable maps each group label to its cluster id.
func (m *Model) AssignmentTable(p *Points) (*table.Table, error) {
	ids := make([]string, len(m.Assignments))
	for i, a := range m.Assignments {
		ids[i] = strconv.Itoa(a)
	}
	return table.New(
		table.StringCol(p.Key, p.Labels),
		table.StringCol("cluster", ids),
	)
}

// CentroidTable lists, per cluster, its size and centroid feature values.
func (m *Model) CentroidTable(p *Points) (*table.Table, error) {
	ids := make([]string, m.K)
	sizes := make([]float64, m.K)
	for j := 0; j < m.K; j++ {
		ids[j] = strconv.Itoa(j)
		sizes[j] = float64(m.Sizes[j])
	}
	cols := []table.Column{table.StringCol("cluster", ids), table.FloatCol("size", sizes)}
	for f, name := range p.Features {
		cols = append(cols, table.FloatCol(name, mat.Col(nil, f, m.Centroids)))
	}
	return table.New(cols...)
}
