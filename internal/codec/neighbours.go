package codec

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// point is one row of the predictor matrix, remembering its original index
// because kdtree.New reorders the backing slice.
type point struct {
	idx    int
	coords []float64
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coords[d] - c.(point).coords[d]
}

func (p point) Dims() int { return len(p.coords) }

// Distance is squared Euclidean, as kdtree expects
func (p point) Distance(c kdtree.Comparable) float64 {
	return squaredDistance(p.coords, c.(point).coords)
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{points: p, Dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	return p.points[i].coords[p.Dim] < p.points[j].coords[p.Dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

func squaredDistance(a, b []float64) float64 {
	var s float64
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return s
}

// nearestNeighbours returns, for every row of x, the index of its nearest
// other row. Exact duplicates draw a uniform partner from their duplicate
// group; equidistant candidates are resolved by a full rescan and a uniform
// draw among all rows at the minimum distance.
func nearestNeighbours(x mat.Matrix, rng *rand.Rand) []int {
	n, _ := x.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	nn := make([]int, n)
	if n < 2 {
		return nn
	}

	pts := make(points, n)
	for i := range pts {
		pts[i] = point{idx: i, coords: rows[i]}
	}
	tree := kdtree.New(pts, false)
	groups := duplicateGroups(rows)

	for i := 0; i < n; i++ {
		q := point{idx: i, coords: rows[i]}
		keep := kdtree.NewNKeeper(3)
		tree.NearestSet(keep, q)

		found := make([]kdtree.ComparableDist, 0, 3)
		for _, c := range keep.Heap {
			if c.Comparable != nil {
				found = append(found, c)
			}
		}
		sort.Slice(found, func(a, b int) bool { return found[a].Dist < found[b].Dist })

		found = dropSelf(found, i)
		switch {
		case found[0].Dist == 0 && len(groups[keyOf(rows[i])]) > 1:
			nn[i] = drawExcluding(groups[keyOf(rows[i])], i, rng)
		case found[0].Dist == 0:
			// distinct coordinates whose squared distance underflows
			nn[i] = drawClosest(rows, i, rng)
		case len(found) > 1 && found[1].Dist == found[0].Dist:
			nn[i] = drawClosest(rows, i, rng)
		default:
			nn[i] = found[0].Comparable.(point).idx
		}
	}
	return nn
}

// dropSelf removes the query row from a 3-NN result, or the farthest hit
// when the query row was crowded out by duplicates.
func dropSelf(found []kdtree.ComparableDist, self int) []kdtree.ComparableDist {
	for k, c := range found {
		if c.Comparable.(point).idx == self {
			return append(found[:k:k], found[k+1:]...)
		}
	}
	return found[:len(found)-1]
}

func drawExcluding(group []int, self int, rng *rand.Rand) int {
	others := make([]int, 0, len(group)-1)
	for _, j := range group {
		if j != self {
			others = append(others, j)
		}
	}
	return others[rng.IntN(len(others))]
}

func drawClosest(rows [][]float64, self int, rng *rand.Rand) int {
	best := math.Inf(1)
	var candidates []int
	for j := range rows {
		if j == self {
			continue
		}
		d := squaredDistance(rows[self], rows[j])
		switch {
		case d < best:
			best = d
			candidates = append(candidates[:0], j)
		case d == best:
			candidates = append(candidates, j)
		}
	}
	return candidates[rng.IntN(len(candidates))]
}

type coordKey string

func keyOf(coords []float64) coordKey {
	b := make([]byte, 0, 8*len(coords))
	for _, v := range coords {
		if v == 0 {
			v = 0 // -0 and +0 are the same point
		}
		bits := math.Float64bits(v)
		for s := 0; s < 64; s += 8 {
			b = append(b, byte(bits>>s))
		}
	}
	return coordKey(b)
}

func duplicateGroups(rows [][]float64) map[coordKey][]int {
	groups := make(map[coordKey][]int, len(rows))
	for i, r := range rows {
		k := keyOf(r)
		groups[k] = append(groups[k], i)
	}
	return groups
}
