package ingest

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
)

func TestReadTrajectoryMovebankColumns(t *testing.T) {
	t.Parallel()

	csv := "timestamp,location_lat,location_long,individual_local_identifier,taxon_canonical_name\n" +
		"2021-07-01 12:00:00.000,-19.5,23.1,E-01,Loxodonta africana\n" +
		"2021-07-01T13:00:00Z,bad,23.2,E-01,Loxodonta africana\n"

	points, err := ReadTrajectory(strings.NewReader(csv), TrajectoryOptions{RequireSpecies: true})
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "E-01", points[0].IndividualID)
	assert.Equal(t, "Loxodonta africana", points[0].Species)
	assert.Equal(t, time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC), points[0].Timestamp)
	assert.Equal(t, -19.5, points[0].Lat)
	assert.Nil(t, points[0].SpeedMPS)

	assert.True(t, math.IsNaN(points[1].Lat), "unparseable cells become missing")
	assert.Equal(t, time.Date(2021, 7, 1, 13, 0, 0, 0, time.UTC), points[1].Timestamp)
}

func TestReadTrajectoryPrefersIndividualID(t *testing.T) {
	t.Parallel()

	csv := "Timestamp,Latitude,Longitude,individual_id,individual_local_identifier,speed_mps\n" +
		"2021-07-01T12:00:00+02:00,1,2,42,E-01,3.5\n"

	points, err := ReadTrajectory(strings.NewReader(csv), TrajectoryOptions{SpeciesFallback: "Panthera leo"})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "42", points[0].IndividualID)
	assert.Equal(t, "Panthera leo", points[0].Species)
	assert.Equal(t, time.Date(2021, 7, 1, 10, 0, 0, 0, time.UTC), points[0].Timestamp)
	require.NotNil(t, points[0].SpeedMPS)
	assert.Equal(t, 3.5, *points[0].SpeedMPS)
}

func TestReadTrajectorySchemaErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		csv  string
		opts TrajectoryOptions
		want string
	}{
		{"missing coordinates", "timestamp,individual_id\n", TrajectoryOptions{}, "lat, lon"},
		{"missing individual", "timestamp,lat,lon\n", TrajectoryOptions{}, "individual_id"},
		{"missing species", "timestamp,lat,lon,individual_id\n", TrajectoryOptions{RequireSpecies: true}, "species"},
		{"empty table", "", TrajectoryOptions{}, "empty"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadTrajectory(strings.NewReader(tt.csv), tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, analysis.ErrSchema)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadTrajectoryUnknownSpecies(t *testing.T) {
	t.Parallel()

	points, err := ReadTrajectory(strings.NewReader("timestamp,lat,lon,individual_id\n2021-07-01,1,2,a\n"), TrajectoryOptions{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, UnknownSpecies, points[0].Species)
}

func TestReadClimateAliases(t *testing.T) {
	t.Parallel()

	csv := "time,latitude,longitude,t2m_c,relative_humidity,tp_mm\n" +
		"2021-07-01 12:00,-19.5,23.25,37.2,18,\n" +
		"2021-07-01 13:00,-19.5,23.25,NA,20,0.4\n"

	samples, err := ReadClimate(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, 37.2, samples[0].TempC)
	require.NotNil(t, samples[0].Humidity)
	assert.Equal(t, 18.0, *samples[0].Humidity)
	assert.Nil(t, samples[0].PrecipMM)

	assert.True(t, math.IsNaN(samples[1].TempC))
	require.NotNil(t, samples[1].PrecipMM)
	assert.Equal(t, 0.4, *samples[1].PrecipMM)
}

func TestReadClimateMissingTemperature(t *testing.T) {
	t.Parallel()

	_, err := ReadClimate(strings.NewReader("timestamp,lat,lon,humidity\n"))
	assert.ErrorIs(t, err, analysis.ErrSchema)
	assert.Contains(t, err.Error(), ColTempC)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("not a time").IsZero())
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), parseTime("2020-01-02"))
}
