package spatial

import (
	"math/rand"
	"testing"
	"time"

	"github.com/golang/geo/s1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
)

var t0 = time.Date(2022, 1, 10, 12, 0, 0, 0, time.UTC)

// eventPoints returns n records of one heat event spread over ~220 m
func eventPoints(id, species string, event int64, lat, lon float64, n int, start time.Time) []models.TaggedRecord {
	out := make([]models.TaggedRecord, n)
	for i := range out {
		eid := event
		out[i].IndividualID = id
		out[i].Species = species
		out[i].Timestamp = start.Add(time.Duration(i) * time.Hour)
		out[i].Lat = lat + float64(i)*0.0005
		out[i].Lon = lon
		out[i].TempC = 38
		out[i].HeatExposure = true
		out[i].HeatEventID = &eid
	}
	return out
}

func params() ClusterParams {
	return ClusterParams{EpsKm: 2, MinSamples: 5}
}

func TestClusterRefugiaTwoIndividuals(t *testing.T) {
	t.Parallel()

	var records []models.TaggedRecord
	records = append(records, eventPoints("e1", "Loxodonta africana", 1, -19.5, 23.1, 6, t0)...)
	records = append(records, eventPoints("e2", "Loxodonta africana", 2, -19.5, 23.1001, 6, t0.AddDate(1, 0, 0))...)

	got, err := ClusterRefugia(records, params())
	require.NoError(t, err)
	require.Len(t, got.Clusters, 1)

	c := got.Clusters[0]
	assert.Equal(t, 0, c.ID)
	assert.Equal(t, 12, c.NumPoints)
	assert.Equal(t, 2, c.NumIndividuals)
	assert.Equal(t, 2, c.NumEvents)
	assert.True(t, c.IsRefugia())
	assert.Equal(t, []int{2022, 2023}, c.Years)
	assert.Equal(t, []string{"Loxodonta africana"}, c.SpeciesList)
	assert.Equal(t, "Loxodonta africana", c.DominantSpecies)
	assert.Equal(t, t0, c.FirstSeen)
	assert.Equal(t, t0.AddDate(1, 0, 0).Add(5*time.Hour), c.LastSeen)
	assert.InDelta(t, -19.49875, c.CentroidLat, 1e-9)
	assert.InDelta(t, 23.10005, c.CentroidLon, 1e-9)

	for _, r := range got.Records {
		id, ok := r.Cluster.ID()
		require.True(t, ok)
		assert.Equal(t, 0, id)
	}
}

func TestClusterRefugiaSingleIndividualIsNotRefugia(t *testing.T) {
	t.Parallel()

	var records []models.TaggedRecord
	records = append(records, eventPoints("e1", "x", 1, -19.5, 23.1, 6, t0)...)
	records = append(records, eventPoints("e1", "x", 2, -19.5, 23.1, 6, t0.Add(48*time.Hour))...)

	got, err := ClusterRefugia(records, params())
	require.NoError(t, err)
	require.Len(t, got.Clusters, 1)
	assert.Equal(t, 1, got.Clusters[0].NumIndividuals)
	assert.Equal(t, 2, got.Clusters[0].NumEvents)
	assert.False(t, got.Clusters[0].IsRefugia())
	assert.Empty(t, models.FilterRefugia(got.Clusters))
}

func TestClusterRefugiaNoiseAndUnassigned(t *testing.T) {
	t.Parallel()

	records := eventPoints("e1", "x", 1, -19.5, 23.1, 5, t0)
	lone := eventPoints("e2", "x", 2, 10, 10, 1, t0)[0]
	quiet := models.TaggedRecord{}
	quiet.IndividualID = "e3"
	quiet.Lat, quiet.Lon = -19.5, 23.1
	quiet.Cluster = models.Member(7) // stale label from an earlier run

	records = append(records, lone, quiet)

	got, err := ClusterRefugia(records, params())
	require.NoError(t, err)
	require.Len(t, got.Clusters, 1)

	assert.True(t, got.Records[5].Cluster.IsNoise())
	require.NotNil(t, got.Records[5].Cluster.ClusterID())
	assert.Equal(t, models.NoiseClusterID, *got.Records[5].Cluster.ClusterID())

	assert.False(t, got.Records[6].Cluster.IsAssigned(), "records outside events are never clustered")
	assert.Nil(t, got.Records[6].Cluster.ClusterID())
}

func TestClusterRefugiaNoEvents(t *testing.T) {
	t.Parallel()

	got, err := ClusterRefugia([]models.TaggedRecord{{}}, params())
	require.NoError(t, err)
	assert.Empty(t, got.Clusters)
	assert.Len(t, got.Records, 1)

	got, err = ClusterRefugia(nil, params())
	require.NoError(t, err)
	assert.Empty(t, got.Clusters)
}

func TestClusterRefugiaInvalidParams(t *testing.T) {
	t.Parallel()

	_, err := ClusterRefugia(nil, ClusterParams{EpsKm: 0, MinSamples: 5})
	assert.ErrorIs(t, err, analysis.ErrInvalidParams)
	_, err = ClusterRefugia(nil, ClusterParams{EpsKm: 2, MinSamples: 0})
	assert.ErrorIs(t, err, analysis.ErrInvalidParams)
}

func TestClusterRefugiaDominantSpeciesTie(t *testing.T) {
	t.Parallel()

	var records []models.TaggedRecord
	records = append(records, eventPoints("a", "Panthera leo", 1, 0, 0, 3, t0)...)
	records = append(records, eventPoints("b", "Acinonyx jubatus", 2, 0, 0, 3, t0)...)

	got, err := ClusterRefugia(records, params())
	require.NoError(t, err)
	require.Len(t, got.Clusters, 1)
	assert.Equal(t, "Acinonyx jubatus", got.Clusters[0].DominantSpecies)
	assert.Equal(t, []string{"Acinonyx jubatus", "Panthera leo"}, got.Clusters[0].SpeciesList)
}

func TestDBSCAN(t *testing.T) {
	t.Parallel()

	radius := spatial.AngularRadius(2)
	points := []spatial.Point{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.005}, {Lat: 0, Lon: 0.01}, // cluster 0
		{Lat: 5, Lon: 5}, // noise
		{Lat: 1, Lon: 1}, {Lat: 1, Lon: 1.005}, {Lat: 1, Lon: 1.01}, // cluster 1
		{Lat: 0, Lon: 0.027}, // border of cluster 0 via its last core point
	}

	labels := DBSCAN(points, radius, 3)
	want := []models.ClusterLabel{
		models.Member(0), models.Member(0), models.Member(0),
		models.Noise(),
		models.Member(1), models.Member(1), models.Member(1),
		models.Member(0),
	}
	assert.Equal(t, want, labels)
}

func TestDBSCANBorderPointClaimedAfterNoise(t *testing.T) {
	t.Parallel()

	// The border point is visited first and marked noise, then reclaimed
	points := []spatial.Point{
		{Lat: 0, Lon: 0.027},
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.005}, {Lat: 0, Lon: 0.01},
	}
	labels := DBSCAN(points, spatial.AngularRadius(2), 3)
	for i, l := range labels {
		id, ok := l.ID()
		assert.True(t, ok, "point %d", i)
		assert.Equal(t, 0, id)
	}
}

func TestDBSCANMinSamplesCountsSelf(t *testing.T) {
	t.Parallel()

	labels := DBSCAN([]spatial.Point{{Lat: 3, Lon: 3}}, spatial.AngularRadius(1), 1)
	assert.Equal(t, []models.ClusterLabel{models.Member(0)}, labels)
}

// textbookDBSCAN re-queues every core neighbourhood in full
func textbookDBSCAN(points []spatial.Point, radius s1.Angle, minSamples int) []models.ClusterLabel {
	index := spatial.NewPointIndex(points)
	labels := make([]models.ClusterLabel, len(points))
	visited := make([]bool, len(points))
	id := 0
	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true
		queue := index.Within(points[i].Lat, points[i].Lon, radius)
		if len(queue) < minSamples {
			labels[i] = models.Noise()
			continue
		}
		labels[i] = models.Member(id)
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j].IsNoise() {
				labels[j] = models.Member(id)
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			labels[j] = models.Member(id)
			if next := index.Within(points[j].Lat, points[j].Lon, radius); len(next) >= minSamples {
				queue = append(queue, next...)
			}
		}
		id++
	}
	return labels
}

func TestDBSCANMatchesTextbookExpansion(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for _, spread := range []float64{0.02, 0.1, 0.5} {
		points := make([]spatial.Point, 400)
		for i := range points {
			points[i] = spatial.Point{Lat: -1 + rng.Float64()*spread, Lon: 36 + rng.Float64()*spread}
		}
		radius := spatial.AngularRadius(1)
		for _, minSamples := range []int{1, 3, 8} {
			assert.Equal(t, textbookDBSCAN(points, radius, minSamples), DBSCAN(points, radius, minSamples),
				"spread=%v min_samples=%d", spread, minSamples)
		}
	}
}

func TestDBSCANDenseWaterhole(t *testing.T) {
	t.Parallel()

	points := make([]spatial.Point, 500)
	for i := range points {
		points[i] = spatial.Point{Lat: -19.5, Lon: 23.1}
	}
	labels := DBSCAN(points, spatial.AngularRadius(0.5), 5)
	for _, l := range labels {
		require.Equal(t, models.Member(0), l)
	}
}
