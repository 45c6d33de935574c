package experiments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/refugia-backend-go/internal/analysis/behavior"
	clustering "github.com/jengzang/refugia-backend-go/internal/analysis/spatial"
	"github.com/jengzang/refugia-backend-go/internal/models"
)

var t0 = time.Date(2021, 11, 1, 10, 0, 0, 0, time.UTC)

func track(id string, start time.Time, lat, lon float64, temps ...float64) []models.AlignedRecord {
	out := make([]models.AlignedRecord, len(temps))
	for i, temp := range temps {
		out[i].IndividualID = id
		out[i].Species = "Loxodonta africana"
		out[i].Timestamp = start.Add(time.Duration(i) * time.Hour)
		out[i].Lat = lat + float64(i)*0.0002
		out[i].Lon = lon
		out[i].TempC = temp
	}
	return out
}

func fixture() []models.AlignedRecord {
	var aligned []models.AlignedRecord
	aligned = append(aligned, track("e1", t0, -19.5, 23.1, 36, 36, 36, 36, 36, 36)...)
	aligned = append(aligned, track("e2", t0, -19.5, 23.1001, 37, 37, 37, 37, 37, 37)...)
	return aligned
}

func TestSensitivity(t *testing.T) {
	t.Parallel()

	events := behavior.EventParams{DefaultThresholdC: 35, WindowHours: 3}
	cluster := clustering.ClusterParams{EpsKm: 2, MinSamples: 5}

	rows, err := Sensitivity(context.Background(), fixture(), events, cluster, DefaultDeltas)
	require.NoError(t, err)
	require.Len(t, rows, len(DefaultDeltas))

	for i, row := range rows {
		assert.Equal(t, DefaultDeltas[i], row.DeltaC)
	}
	assert.Equal(t, 2, rows[2].NumEvents)
	assert.Equal(t, 1, rows[2].NumRefugia)
	// At +2 °C only e2 (37 °C) is hot: one individual, no refugia
	assert.Equal(t, 1, rows[4].NumEvents)
	assert.Equal(t, 1, rows[4].NumClusters)
	assert.Zero(t, rows[4].NumRefugia)
}

func TestSensitivityDoesNotMutateThresholds(t *testing.T) {
	t.Parallel()

	thresholds := map[string]float64{"Loxodonta africana": 35}
	events := behavior.EventParams{Thresholds: thresholds, DefaultThresholdC: 35, WindowHours: 3}
	_, err := Sensitivity(context.Background(), fixture(), events, clustering.ClusterParams{EpsKm: 2, MinSamples: 5}, []float64{-1, 1})
	require.NoError(t, err)
	assert.Equal(t, 35.0, thresholds["Loxodonta africana"])
}

func TestHeatwaveResponse(t *testing.T) {
	t.Parallel()

	aligned := fixture()
	aligned = append(aligned, track("e1", t0.AddDate(1, 0, 0), 10, 10, 40, 40, 40, 40, 40)...)

	detection, err := behavior.DetectEvents(context.Background(), aligned, behavior.EventParams{DefaultThresholdC: 35, WindowHours: 3})
	require.NoError(t, err)

	years, err := HeatwaveResponse(detection.Records, clustering.ClusterParams{EpsKm: 2, MinSamples: 5})
	require.NoError(t, err)
	require.Len(t, years, 2)
	assert.Equal(t, 2021, years[0].Year)
	require.Len(t, years[0].Clusters, 1)
	assert.True(t, years[0].Clusters[0].IsRefugia())
	assert.Equal(t, 2022, years[1].Year)
	require.Len(t, years[1].Clusters, 1)
	assert.False(t, years[1].Clusters[0].IsRefugia())
}

func TestSpatialConsistency(t *testing.T) {
	t.Parallel()

	rec := func(year int, lat float64) models.TaggedRecord {
		var r models.TaggedRecord
		r.Timestamp = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		r.Lat, r.Lon = lat, 0
		r.Cluster = models.Member(0)
		return r
	}
	records := []models.TaggedRecord{rec(2020, 0), rec(2020, 0.02), rec(2021, 0.02), rec(2023, 0.01)}
	clusters := []models.RefugiaCluster{
		{ID: 0, NumIndividuals: 2, NumEvents: 3},
		{ID: 1, NumIndividuals: 1, NumEvents: 1},
	}

	c := SpatialConsistency(clusters, records)
	assert.Equal(t, 2, c.Clusters)
	assert.Equal(t, 1, c.Refugia)
	assert.Equal(t, 0.5, c.RefugiaRate)
	require.NotNil(t, c.MeanCentroidShiftKm)
	require.NotNil(t, c.MedianCentroidShiftKm)
	// 2020 centroid 0.01, 2021 at 0.02, 2023 at 0.01: two shifts of 0.01°
	assert.InDelta(t, 1.112, *c.MeanCentroidShiftKm, 0.01)
	assert.InDelta(t, 1.112, *c.MedianCentroidShiftKm, 0.01)
}

func TestSpatialConsistencySingleYear(t *testing.T) {
	t.Parallel()

	c := SpatialConsistency(nil, nil)
	assert.Zero(t, c.RefugiaRate)
	assert.Nil(t, c.MeanCentroidShiftKm)
}

func TestModelComparison(t *testing.T) {
	t.Parallel()

	mk := func(lat, temp float64, clustered bool) models.TaggedRecord {
		var r models.TaggedRecord
		r.Lat, r.Lon, r.TempC = lat, 0, temp
		if clustered {
			r.Cluster = models.Member(0)
		}
		return r
	}
	records := []models.TaggedRecord{
		mk(0, 30, true),
		mk(1, 40, true),
		mk(2, 41, false),
		mk(3, 42, false),
	}

	got := ModelComparison(records, 0.25)
	require.NotNil(t, got.OverlapRate)
	assert.Equal(t, 0.5, *got.OverlapRate)

	assert.Nil(t, ModelComparison(nil, DefaultCoolQuantile).OverlapRate)
}
