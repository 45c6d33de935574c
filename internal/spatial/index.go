package spatial

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

// BruteForceThreshold is the site count below which queries scan linearly
const BruteForceThreshold = 32

// PointIndex answers great-circle nearest-neighbour and radius queries over
// a fixed set of sites. Sites are embedded as S2 unit vectors; the chord
// length between two unit vectors is monotone in their central angle, so a
// 3-D k-d tree over the vectors returns exact great-circle answers.
//
// Equidistant sites resolve to the lexicographically smallest (lat, lon),
// then to the smallest input index.
//
// The index is immutable after construction and safe for concurrent queries.
type PointIndex struct {
	sites []Point
	vecs  []r3.Vector
	rank  []int // rank[i] = position of site i in (lat, lon, i) order
	order []int // site indices in (lat, lon, i) order
	nodes []kdNode
	root  int
	brute bool
}

type kdNode struct {
	site  int
	axis  int
	left  int
	right int
}

// NewPointIndex builds an index over sites. The caller's slice is not retained.
func NewPointIndex(sites []Point) *PointIndex {
	idx := &PointIndex{
		sites: make([]Point, len(sites)),
		vecs:  make([]r3.Vector, len(sites)),
		rank:  make([]int, len(sites)),
		order: make([]int, len(sites)),
		root:  -1,
		brute: len(sites) < BruteForceThreshold,
	}
	copy(idx.sites, sites)

	for i, p := range idx.sites {
		idx.vecs[i] = unitVector(p.Lat, p.Lon)
		idx.order[i] = i
	}
	sort.SliceStable(idx.order, func(a, b int) bool {
		pa, pb := idx.sites[idx.order[a]], idx.sites[idx.order[b]]
		if pa.Lat != pb.Lat {
			return pa.Lat < pb.Lat
		}
		return pa.Lon < pb.Lon
	})
	for pos, i := range idx.order {
		idx.rank[i] = pos
	}

	if !idx.brute {
		perm := make([]int, len(idx.order))
		copy(perm, idx.order)
		idx.nodes = make([]kdNode, 0, len(perm))
		idx.root = idx.build(perm, 0)
	}
	return idx
}

// Len returns the number of indexed sites
func (idx *PointIndex) Len() int {
	return len(idx.sites)
}

// Site returns the coordinates of site i
func (idx *PointIndex) Site(i int) Point {
	return idx.sites[i]
}

func (idx *PointIndex) build(perm []int, depth int) int {
	if len(perm) == 0 {
		return -1
	}
	axis := depth % 3
	sort.Slice(perm, func(a, b int) bool {
		ca, cb := axisValue(idx.vecs[perm[a]], axis), axisValue(idx.vecs[perm[b]], axis)
		if ca != cb {
			return ca < cb
		}
		return idx.rank[perm[a]] < idx.rank[perm[b]]
	})
	mid := len(perm) / 2

	node := len(idx.nodes)
	idx.nodes = append(idx.nodes, kdNode{site: perm[mid], axis: axis, left: -1, right: -1})
	left := idx.build(perm[:mid], depth+1)
	right := idx.build(perm[mid+1:], depth+1)
	idx.nodes[node].left = left
	idx.nodes[node].right = right
	return node
}

// Nearest returns the index of the site closest to (lat, lon) and its
// great-circle distance in kilometers. It returns -1 when the index is empty.
func (idx *PointIndex) Nearest(lat, lon float64) (int, float64) {
	if len(idx.sites) == 0 {
		return -1, math.NaN()
	}

	q := unitVector(lat, lon)
	best, bestD2 := -1, math.Inf(1)

	if idx.brute {
		for _, i := range idx.order {
			if d2 := q.Sub(idx.vecs[i]).Norm2(); d2 < bestD2 {
				best, bestD2 = i, d2
			}
		}
	} else {
		idx.nearest(idx.root, q, &best, &bestD2)
	}

	s := idx.sites[best]
	return best, HaversineKm(lat, lon, s.Lat, s.Lon)
}

func (idx *PointIndex) nearest(node int, q r3.Vector, best *int, bestD2 *float64) {
	if node < 0 {
		return
	}
	n := idx.nodes[node]
	v := idx.vecs[n.site]

	d2 := q.Sub(v).Norm2()
	if d2 < *bestD2 || (d2 == *bestD2 && idx.rank[n.site] < idx.rank[*best]) {
		*best, *bestD2 = n.site, d2
	}

	diff := axisValue(q, n.axis) - axisValue(v, n.axis)
	near, far := n.left, n.right
	if diff > 0 {
		near, far = n.right, n.left
	}
	idx.nearest(near, q, best, bestD2)
	// Equal plane distance must still be visited so ties can win on rank.
	if diff*diff <= *bestD2 {
		idx.nearest(far, q, best, bestD2)
	}
}

// Within returns the indices of all sites whose central angle to (lat, lon)
// is at most radius, in ascending index order.
func (idx *PointIndex) Within(lat, lon float64, radius s1.Angle) []int {
	if len(idx.sites) == 0 {
		return nil
	}

	q := unitVector(lat, lon)
	r2 := float64(s1.ChordAngleFromAngle(radius))
	if r2 < 0 {
		return nil
	}

	var out []int
	if idx.brute {
		for i, v := range idx.vecs {
			if q.Sub(v).Norm2() <= r2 {
				out = append(out, i)
			}
		}
		return out
	}

	idx.within(idx.root, q, r2, &out)
	sort.Ints(out)
	return out
}

func (idx *PointIndex) within(node int, q r3.Vector, r2 float64, out *[]int) {
	if node < 0 {
		return
	}
	n := idx.nodes[node]
	v := idx.vecs[n.site]

	if q.Sub(v).Norm2() <= r2 {
		*out = append(*out, n.site)
	}

	diff := axisValue(q, n.axis) - axisValue(v, n.axis)
	if diff <= 0 || diff*diff <= r2 {
		idx.within(n.left, q, r2, out)
	}
	if diff >= 0 || diff*diff <= r2 {
		idx.within(n.right, q, r2, out)
	}
}

func axisValue(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
