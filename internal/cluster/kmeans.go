// Package cluster runs k-means over the pruned feature matrix: a dispersion
// sweep for elbow inspection and a final fit for a chosen k.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientData is returned when there are no points (or no features) to cluster.
	ErrInsufficientData = errors.New("insufficient data for clustering")
	// ErrInvalidClusterCount is returned for k < 1 or k above the number of distinct points.
	ErrInvalidClusterCount = errors.New("invalid cluster count")
)

// Options tunes the k-means runs.
type Options struct {
	// Restarts is the number of independently seeded runs; the lowest dispersion wins.
	Restarts int
	// MaxIter caps Lloyd iterations per run.
	MaxIter int
	// Tol stops a run once no centroid moves further than this (Euclidean).
	Tol float64
	// Seed makes runs reproducible.
	Seed uint64
	// Workers bounds concurrent fits during a sweep; <= 0 means one per k.
	Workers int
}

// DefaultOptions mirrors common k-means defaults: 10 restarts, 300 iterations.
func DefaultOptions() Options {
	return Options{Restarts: 10, MaxIter: 300, Tol: 1e-6, Seed: 42, Workers: 4}
}

// Model is a fitted partition.
type Model struct {
	K           int
	Assignments []int
	Centroids   *mat.Dense
	Sizes       []int
	Dispersion  float64
	Iterations  int
}

// SweepPoint is one (k, dispersion) pair of an elbow sweep.
type SweepPoint struct {
	K          int
	Dispersion float64
}

func checkPoints(points *mat.Dense) (int, int, error) {
	if points == nil || points.IsEmpty() {
		return 0, 0, ErrInsufficientData
	}
	r, c := points.Dims()
	if r == 0 || c == 0 {
		return 0, 0, ErrInsufficientData
	}
	return r, c, nil
}

// DistinctPoints counts unique rows.
func DistinctPoints(points *mat.Dense) int {
	if points == nil || points.IsEmpty() {
		return 0
	}
	r, _ := points.Dims()
	seen := make(map[string]struct{}, r)
	for i := 0; i < r; i++ {
		row := points.RawRowView(i)
		key := make([]byte, 0, len(row)*8)
		for _, v := range row {
			b := math.Float64bits(v)
			for s := 0; s < 64; s += 8 {
				key = append(key, byte(b>>s))
			}
		}
		seen[string(key)] = struct{}{}
	}
	return len(seen)
}

// TotalSumOfSquares is the sum of squared distances of every point to the
// global centroid, i.e. the dispersion of a single cluster.
func TotalSumOfSquares(points *mat.Dense) (float64, error) {
	r, c, err := checkPoints(points)
	if err != nil {
		return 0, err
	}
	mean := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(mean, points.RawRowView(i))
	}
	floats.Scale(1/float64(r), mean)
	diff := make([]float64, c)
	var total float64
	for i := 0; i < r; i++ {
		total += sqDist(diff, points.RawRowView(i), mean)
	}
	return total, nil
}

func sqDist(scratch, a, b []float64) float64 {
	floats.SubTo(scratch, a, b)
	return floats.Dot(scratch, scratch)
}

// FitClusters partitions the rows of points into k clusters.
func FitClusters(points *mat.Dense, k int, opt Options) (*Model, error) {
	r, _, err := checkPoints(points)
	if err != nil {
		return nil, err
	}
	if k < 1 || k > r {
		return nil, fmt.Errorf("%w: k=%d with %d points", ErrInvalidClusterCount, k, r)
	}
	if d := DistinctPoints(points); k > d {
		return nil, fmt.Errorf("%w: k=%d with %d distinct points", ErrInvalidClusterCount, k, d)
	}
	restarts := opt.Restarts
	if restarts < 1 {
		restarts = 1
	}
	maxIter := opt.MaxIter
	if maxIter < 1 {
		maxIter = 300
	}
	var best *Model
	for run := 0; run < restarts; run++ {
		rng := rand.New(rand.NewPCG(opt.Seed, uint64(run)<<32|uint64(k)))
		m := lloyd(points, k, maxIter, opt.Tol, rng)
		if best == nil || m.Dispersion < best.Dispersion {
			best = m
		}
	}
	return best, nil
}

// seedPlusPlus picks k initial centroids with D² weighting. Callers guarantee
// at least k distinct rows, so the weight mass stays positive until k are chosen.
func seedPlusPlus(points *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	r, c := points.Dims()
	cent := mat.NewDense(k, c, nil)
	cent.SetRow(0, points.RawRowView(rng.IntN(r)))
	d2 := make([]float64, r)
	scratch := make([]float64, c)
	for i := 0; i < r; i++ {
		d2[i] = sqDist(scratch, points.RawRowView(i), cent.RawRowView(0))
	}
	for j := 1; j < k; j++ {
		total := floats.Sum(d2)
		target := rng.Float64() * total
		pick := -1
		var acc float64
		for i, w := range d2 {
			if w == 0 {
				continue
			}
			acc += w
			pick = i
			if acc >= target {
				break
			}
		}
		cent.SetRow(j, points.RawRowView(pick))
		for i := 0; i < r; i++ {
			if d := sqDist(scratch, points.RawRowView(i), cent.RawRowView(j)); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return cent
}

func lloyd(points *mat.Dense, k, maxIter int, tol float64, rng *rand.Rand) *Model {
	r, c := points.Dims()
	cent := seedPlusPlus(points, k, rng)
	assign := make([]int, r)
	dist := make([]float64, r)
	scratch := make([]float64, c)
	sums := mat.NewDense(k, c, nil)
	sizes := make([]int, k)

	iter := 0
	for iter < maxIter {
		iter++
		for i := 0; i < r; i++ {
			row := points.RawRowView(i)
			bestJ, bestD := 0, math.Inf(1)
			for j := 0; j < k; j++ {
				if d := sqDist(scratch, row, cent.RawRowView(j)); d < bestD {
					bestJ, bestD = j, d
				}
			}
			assign[i], dist[i] = bestJ, bestD
		}
		sums.Zero()
		for j := range sizes {
			sizes[j] = 0
		}
		for i := 0; i < r; i++ {
			floats.Add(sums.RawRowView(assign[i]), points.RawRowView(i))
			sizes[assign[i]]++
		}
		for j := 0; j < k; j++ {
			if sizes[j] > 0 {
				continue
			}
			// Empty cluster: take the point farthest from its centroid among
			// clusters that can spare one.
			far := -1
			for i := 0; i < r; i++ {
				if sizes[assign[i]] > 1 && (far < 0 || dist[i] > dist[far]) {
					far = i
				}
			}
			sizes[assign[far]]--
			floats.Sub(sums.RawRowView(assign[far]), points.RawRowView(far))
			assign[far] = j
			dist[far] = 0
			sums.SetRow(j, points.RawRowView(far))
			sizes[j] = 1
		}
		var shift float64
		for j := 0; j < k; j++ {
			next := sums.RawRowView(j)
			floats.Scale(1/float64(sizes[j]), next)
			if d := floats.Distance(next, cent.RawRowView(j), 2); d > shift {
				shift = d
			}
			cent.SetRow(j, next)
		}
		if shift <= tol {
			break
		}
	}
	// Centroids are the means of the last assignment, so every reported
	// cluster is non-empty and its centroid matches its members.
	var disp float64
	for i := 0; i < r; i++ {
		disp += sqDist(scratch, points.RawRowView(i), cent.RawRowView(assign[i]))
	}
	return &Model{K: k, Assignments: assign, Centroids: cent, Sizes: sizes, Dispersion: disp, Iterations: iter}
}

// SweepDispersion fits one model per k in [kMin, kMax] and returns the
// dispersions ordered by k. Fits are independent and may run concurrently.
func SweepDispersion(ctx context.Context, points *mat.Dense, kMin, kMax int, opt Options) ([]SweepPoint, error) {
	if _, _, err := checkPoints(points); err != nil {
		return nil, err
	}
	if kMin < 1 || kMax < kMin {
		return nil, fmt.Errorf("%w: sweep range [%d, %d]", ErrInvalidClusterCount, kMin, kMax)
	}
	out := make([]SweepPoint, kMax-kMin+1)
	g, ctx := errgroup.WithContext(ctx)
	if opt.Workers > 0 {
		g.SetLimit(opt.Workers)
	}
	for k := kMin; k <= kMax; k++ {
		k := k
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := FitClusters(points, k, opt)
			if err != nil {
				return fmt.Errorf("k=%d: %w", k, err)
			}
			out[k-kMin] = SweepPoint{K: k, Dispersion: m.Dispersion}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].K < out[j].K })
	return out, nil
}
