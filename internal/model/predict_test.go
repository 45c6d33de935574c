package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/refugia-backend-go/internal/models"
)

// warmthClassifier scores a row by its temperature column
type warmthClassifier struct {
	columns [][]float64
	short   bool
	err     error
}

func (c *warmthClassifier) Fit([][]float64, []bool) error { return nil }

func (c *warmthClassifier) PredictProba(features [][]float64) ([]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.columns = append(c.columns, features...)
	out := make([]float64, len(features))
	for i, row := range features {
		out[i] = row[2] / 50
	}
	if c.short {
		out = out[1:]
	}
	return out, nil
}

func futureClimate() []models.ClimateSample {
	ts := time.Date(2050, 1, 15, 13, 0, 0, 0, time.UTC)
	h := 25.0
	return []models.ClimateSample{
		{Timestamp: ts, Lat: -19.5, Lon: 23.1, TempC: 30, Humidity: &h},
		{Timestamp: ts, Lat: -19.6, Lon: 23.2, TempC: 38},
		{Timestamp: ts, Lat: -19.7, Lon: 23.3, TempC: 40},
	}
}

func TestPredictFuture(t *testing.T) {
	t.Parallel()

	spec := FeatureSpec{
		Columns:       append(append([]string{}, BaseColumns...), "species_Loxodonta africana", "species_Panthera leo"),
		SpeciesLevels: []string{"Loxodonta africana", "Panthera leo"},
	}
	thresholds := map[string]float64{"Loxodonta africana": 35}
	c := &warmthClassifier{}

	got, err := PredictFuture(futureClimate(), c, spec, thresholds,
		[]string{"Loxodonta africana", "Panthera leo"}, DefaultProbabilityThreshold)
	require.NoError(t, err)

	// Elephants keep the two samples above their threshold, lions keep all three
	require.Len(t, got, 5)
	assert.Equal(t, "Loxodonta africana", got[0].Species)
	assert.Equal(t, 38.0, got[0].TempC)
	assert.InDelta(t, 0.76, got[0].RefugiaProbability, 1e-9)
	assert.True(t, got[0].IsRefugiaPred)
	assert.Equal(t, "Panthera leo", got[2].Species)
	assert.InDelta(t, 0.6, got[2].RefugiaProbability, 1e-9)
	assert.False(t, got[2].IsRefugiaPred)
	require.NotNil(t, got[2].Humidity)
	assert.Equal(t, 25.0, *got[2].Humidity)

	require.Len(t, c.columns, 5)
	for _, row := range c.columns {
		assert.Len(t, row, len(spec.Columns))
	}
	assert.Equal(t, []float64{1, 0}, c.columns[0][len(BaseColumns):])
	assert.Equal(t, []float64{0, 1}, c.columns[2][len(BaseColumns):])
}

func TestPredictFutureUnknownSpeciesUsesTrainedLevels(t *testing.T) {
	t.Parallel()

	spec := FeatureSpec{SpeciesLevels: []string{"Panthera leo"}}
	c := &warmthClassifier{}
	got, err := PredictFuture(futureClimate(), c, spec, nil, []string{"Acinonyx jubatus"}, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 0.0, c.columns[0][len(BaseColumns)])
}

func TestPredictFutureEmptyAndErrors(t *testing.T) {
	t.Parallel()

	spec := FeatureSpec{SpeciesLevels: []string{"Panthera leo"}}

	got, err := PredictFuture(futureClimate(), &warmthClassifier{}, spec,
		map[string]float64{"Panthera leo": 45}, []string{"Panthera leo"}, 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = PredictFuture(futureClimate(), nil, spec, nil, []string{"Panthera leo"}, 0.5)
	assert.Error(t, err)

	boom := errors.New("model offline")
	_, err = PredictFuture(futureClimate(), &warmthClassifier{err: boom}, spec, nil, []string{"Panthera leo"}, 0.5)
	assert.ErrorIs(t, err, boom)

	_, err = PredictFuture(futureClimate(), &warmthClassifier{short: true}, spec, nil, []string{"Panthera leo"}, 0.5)
	assert.ErrorContains(t, err, "2 probabilities for 3 rows")
}
