// Package model defines the supervised learning contract of the pipeline:
// the feature matrix built from labeled points and the classifier
// collaborator that consumes it.
package model

import (
	"math"
	"sort"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/stats"
)

// Base feature columns, in matrix order
var BaseColumns = []string{
	"lat", "lon", "temp_c", "humidity", "precip_mm",
	"hour", "dayofyear", "heat_threshold_c",
}

const speciesPrefix = "species_"

// FeatureSpec describes the columns of a feature matrix
type FeatureSpec struct {
	Columns       []string `json:"columns"`
	SpeciesLevels []string `json:"species_levels"`
}

// Classifier is a binary classifier trained on labeled refugia points.
// No implementation ships with the pipeline; callers inject one.
type Classifier interface {
	Fit(features [][]float64, labels []bool) error
	PredictProba(features [][]float64) ([]float64, error)
}

// BuildFeatures builds one row per point: the base columns followed by a
// one-hot encoding of species over speciesLevels. A nil speciesLevels uses
// the sorted distinct species of points. Species without a threshold and
// absent humidity or precipitation are missing; missing cells take their
// column median, and 0 when the whole column is missing.
func BuildFeatures(points []models.TaggedRecord, thresholds map[string]float64, speciesLevels []string) ([][]float64, FeatureSpec) {
	if speciesLevels == nil {
		speciesLevels = distinctSpecies(points)
	}
	levelIndex := make(map[string]int, len(speciesLevels))
	for i, s := range speciesLevels {
		levelIndex[s] = i
	}

	spec := FeatureSpec{
		Columns:       make([]string, 0, len(BaseColumns)+len(speciesLevels)),
		SpeciesLevels: append([]string(nil), speciesLevels...),
	}
	spec.Columns = append(spec.Columns, BaseColumns...)
	for _, s := range speciesLevels {
		spec.Columns = append(spec.Columns, speciesPrefix+s)
	}

	nBase := len(BaseColumns)
	rows := make([][]float64, len(points))
	for i, p := range points {
		row := make([]float64, len(spec.Columns))
		ts := p.Timestamp.UTC()
		threshold, ok := thresholds[p.Species]
		if !ok {
			threshold = math.NaN()
		}

		row[0] = p.Lat
		row[1] = p.Lon
		row[2] = p.TempC
		row[3] = valueOrNaN(p.Humidity)
		row[4] = valueOrNaN(p.PrecipMM)
		row[5] = float64(ts.Hour())
		row[6] = float64(ts.YearDay())
		row[7] = threshold

		if k, ok := levelIndex[p.Species]; ok {
			row[nBase+k] = 1
		}
		rows[i] = row
	}

	imputeBase(rows, nBase)
	return rows, spec
}

// Labels returns the refugia labels aligned with BuildFeatures rows
func Labels(points []models.LabeledPoint) []bool {
	labels := make([]bool, len(points))
	for i, p := range points {
		labels[i] = p.IsRefugiaPoint
	}
	return labels
}

// TaggedRecords strips labeled points back to their tagged records
func TaggedRecords(points []models.LabeledPoint) []models.TaggedRecord {
	out := make([]models.TaggedRecord, len(points))
	for i, p := range points {
		out[i] = p.TaggedRecord
	}
	return out
}

func imputeBase(rows [][]float64, nBase int) {
	column := make([]float64, 0, len(rows))
	for c := 0; c < nBase; c++ {
		column = column[:0]
		for _, row := range rows {
			column = append(column, row[c])
		}
		fill := 0.0
		if present := stats.DropNaN(column); len(present) > 0 {
			fill = stats.Median(present)
		}
		for _, row := range rows {
			if math.IsNaN(row[c]) {
				row[c] = fill
			}
		}
	}
}

func distinctSpecies(points []models.TaggedRecord) []string {
	seen := make(map[string]struct{})
	for _, p := range points {
		seen[p.Species] = struct{}{}
	}
	levels := make([]string, 0, len(seen))
	for s := range seen {
		levels = append(levels, s)
	}
	sort.Strings(levels)
	return levels
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
