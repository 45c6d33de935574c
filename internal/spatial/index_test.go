package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSites(r *rand.Rand, n int) []Point {
	sites := make([]Point, n)
	for i := range sites {
		sites[i] = Point{Lat: r.Float64()*180 - 90, Lon: r.Float64()*360 - 180}
	}
	return sites
}

func bruteNearest(sites []Point, lat, lon float64) (int, float64) {
	best, bestD := -1, math.Inf(1)
	for i, s := range sites {
		if d := HaversineKm(lat, lon, s.Lat, s.Lon); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

func TestPointIndexNearestMatchesBruteForce(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 5, BruteForceThreshold - 1, BruteForceThreshold, 500} {
		sites := randomSites(r, n)
		idx := NewPointIndex(sites)
		require.Equal(t, n, idx.Len())

		for q := 0; q < 200; q++ {
			lat, lon := r.Float64()*180-90, r.Float64()*360-180
			got, gotD := idx.Nearest(lat, lon)
			_, wantD := bruteNearest(sites, lat, lon)
			require.GreaterOrEqual(t, got, 0)
			assert.InDelta(t, wantD, gotD, 1e-6, "n=%d query (%f, %f)", n, lat, lon)
		}
	}
}

func TestPointIndexWithinMatchesBruteForce(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(11))
	sites := make([]Point, 400)
	for i := range sites {
		// Dense patch so radius queries return something
		sites[i] = Point{Lat: -19 + r.Float64(), Lon: 23 + r.Float64()}
	}
	idx := NewPointIndex(sites)

	for q := 0; q < 50; q++ {
		lat, lon := -19+r.Float64(), 23+r.Float64()
		km := 5 + r.Float64()*20

		var want []int
		for i, s := range sites {
			if HaversineKm(lat, lon, s.Lat, s.Lon) <= km-1e-9 {
				want = append(want, i)
			}
		}
		got := idx.Within(lat, lon, AngularRadius(km))
		// Every strictly-inside site is found and results are ascending
		assert.Subset(t, got, want)
		assert.IsIncreasing(t, got)
		for _, i := range got {
			assert.LessOrEqual(t, HaversineKm(lat, lon, sites[i].Lat, sites[i].Lon), km+1e-6)
		}
	}
}

func TestPointIndexTieBreak(t *testing.T) {
	t.Parallel()

	// Query on the equator midway between two sites on the same meridian
	sites := []Point{{Lat: 1, Lon: 10}, {Lat: -1, Lon: 10}}
	idx := NewPointIndex(sites)

	got, _ := idx.Nearest(0, 10)
	assert.Equal(t, 1, got, "smallest (lat, lon) wins the tie")

	dup := []Point{{Lat: 5, Lon: 5}, {Lat: 5, Lon: 5}}
	got, d := NewPointIndex(dup).Nearest(5, 5)
	assert.Equal(t, 0, got, "identical sites resolve to the first index")
	assert.Zero(t, d)
}

func TestPointIndexTieBreakKDTree(t *testing.T) {
	t.Parallel()

	filler := make([]Point, BruteForceThreshold+8)
	for i := range filler {
		filler[i] = Point{Lat: 40 + float64(i)*0.5, Lon: -120 + float64(i)*3}
	}
	north, south := Point{Lat: 1, Lon: 10}, Point{Lat: -1, Lon: 10}

	tests := []struct {
		name  string
		sites []Point
		want  int
	}{
		{"north first", append([]Point{north, south}, filler...), 1},
		{"south first", append([]Point{south, north}, filler...), 0},
		{"pair after filler", append(append([]Point(nil), filler...), north, south), len(filler) + 1},
		{"pair split by filler", append(append([]Point{north}, filler...), south), len(filler) + 1},
		{"duplicates", append(append([]Point(nil), filler...), south, north, south), len(filler)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			idx := NewPointIndex(tt.sites)
			require.GreaterOrEqual(t, idx.Len(), BruteForceThreshold)
			got, _ := idx.Nearest(0, 10)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPointIndexEmpty(t *testing.T) {
	t.Parallel()

	idx := NewPointIndex(nil)
	i, d := idx.Nearest(0, 0)
	assert.Equal(t, -1, i)
	assert.True(t, math.IsNaN(d))
	assert.Empty(t, idx.Within(0, 0, AngularRadius(10)))
}

func TestPointIndexWithinIncludesSelf(t *testing.T) {
	t.Parallel()

	sites := []Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}, {Lat: 10, Lon: 10}}
	idx := NewPointIndex(sites)
	assert.Equal(t, []int{0, 1}, idx.Within(0, 0, AngularRadius(2)))
	assert.Equal(t, []int{0}, idx.Within(0, 0, 0))
}
