package foundation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/refugia-backend-go/internal/models"
)

func sample(lat, lon float64, minutes int, temp float64) models.ClimateSample {
	return models.ClimateSample{
		Timestamp: t0.Add(time.Duration(minutes) * time.Minute),
		Lat:       lat,
		Lon:       lon,
		TempC:     temp,
	}
}

var hourTolerance = AlignParams{TimeTolerance: 60 * time.Minute, Workers: 2}

func TestAlignNearestCellAndTime(t *testing.T) {
	t.Parallel()

	climate := []models.ClimateSample{
		sample(0, 0, 0, 30),
		sample(0, 0, 60, 31),
		sample(0, 0.25, 0, 40),
		sample(0, 0.25, 60, 41),
	}
	traj := []models.TrajectoryPoint{
		fix("a", 50, 0, 0.2),  // nearer the eastern cell, nearer the 60 min sample
		fix("a", 10, 0, 0.01), // western cell, 0 min sample
	}

	got, err := Align(context.Background(), traj, climate, hourTolerance)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Output is ordered by (individual, timestamp)
	assert.Equal(t, t0.Add(10*time.Minute), got[0].Timestamp)
	assert.Equal(t, 0.0, got[0].GridLon)
	assert.Equal(t, 30.0, got[0].TempC)
	assert.InDelta(t, 1.112, got[0].GridDistanceKm, 0.01)

	assert.Equal(t, 0.25, got[1].GridLon)
	assert.Equal(t, 41.0, got[1].TempC)
	assert.Equal(t, 10*time.Minute, got[1].TimeOffset())
}

func TestAlignDropsOutsideTolerance(t *testing.T) {
	t.Parallel()

	climate := []models.ClimateSample{sample(0, 0, 0, 30)}
	traj := []models.TrajectoryPoint{
		fix("a", 90, 0, 0), // 90 min from the only sample
		fix("a", 60, 0, 0), // exactly at the tolerance: kept
	}

	got, err := Align(context.Background(), traj, climate, hourTolerance)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t0.Add(time.Hour), got[0].Timestamp)
}

func TestAlignTieResolvesToEarlierSample(t *testing.T) {
	t.Parallel()

	climate := []models.ClimateSample{
		sample(0, 0, 60, 32),
		sample(0, 0, 0, 30),
	}
	traj := []models.TrajectoryPoint{fix("a", 30, 0, 0)}

	got, err := Align(context.Background(), traj, climate, hourTolerance)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 30.0, got[0].TempC)
	assert.Equal(t, t0, got[0].ClimateTime)
}

func TestAlignDropsMissingTemperature(t *testing.T) {
	t.Parallel()

	climate := []models.ClimateSample{sample(0, 0, 0, math.NaN())}
	got, err := Align(context.Background(), []models.TrajectoryPoint{fix("a", 0, 0, 0)}, climate, hourTolerance)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAlignEmptyInputs(t *testing.T) {
	t.Parallel()

	got, err := Align(context.Background(), nil, []models.ClimateSample{sample(0, 0, 0, 30)}, hourTolerance)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = Align(context.Background(), []models.TrajectoryPoint{fix("a", 0, 0, 0)}, nil, hourTolerance)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAlignOrderIndependent(t *testing.T) {
	t.Parallel()

	var climate []models.ClimateSample
	for lon := 0; lon < 5; lon++ {
		for h := 0; h < 6; h++ {
			climate = append(climate, sample(0, float64(lon)*0.25, h*60, float64(30+lon+h)))
		}
	}
	var traj []models.TrajectoryPoint
	for i := 0; i < 20; i++ {
		traj = append(traj, fix("a", float64(i*15), 0, float64(i)*0.05))
		traj = append(traj, fix("b", float64(i*15), 0.1, 1-float64(i)*0.05))
	}

	forward, err := Align(context.Background(), traj, climate, hourTolerance)
	require.NoError(t, err)

	reversed := make([]models.TrajectoryPoint, len(traj))
	for i, p := range traj {
		reversed[len(traj)-1-i] = p
	}
	backward, err := Align(context.Background(), reversed, climate, AlignParams{TimeTolerance: time.Hour, Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, forward, backward)
}

func TestAlignCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Align(ctx, []models.TrajectoryPoint{fix("a", 0, 0, 0)}, []models.ClimateSample{sample(0, 0, 0, 30)}, hourTolerance)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearestSample(t *testing.T) {
	t.Parallel()

	samples := []models.ClimateSample{sample(0, 0, 0, 1), sample(0, 0, 60, 2), sample(0, 0, 120, 3)}
	tests := []struct {
		name    string
		minutes int
		want    float64
		ok      bool
	}{
		{"exact", 60, 2, true},
		{"before first", -30, 1, true},
		{"after last beyond tolerance", 200, 0, false},
		{"closer to later", 100, 3, true},
		{"midpoint", 90, 2, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, ok := NearestSample(samples, t0.Add(time.Duration(tt.minutes)*time.Minute), time.Hour)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, s.TempC)
			}
		})
	}
}
