package model

import (
	"fmt"

	"github.com/jengzang/refugia-backend-go/internal/models"
)

// DefaultProbabilityThreshold is the refugia probability at or above which
// a prediction counts as refugia
const DefaultProbabilityThreshold = 0.7

// PredictFuture scores a climate table for every species on the trained
// classifier. A species with a threshold only keeps samples at or above it.
// Features are built on the species levels of spec so the columns match
// those the classifier was fitted on. Output is grouped by species in the
// given order, samples in table order.
func PredictFuture(climate []models.ClimateSample, c Classifier, spec FeatureSpec,
	thresholds map[string]float64, species []string, probThreshold float64) ([]models.RefugiaPrediction, error) {

	if c == nil {
		return nil, fmt.Errorf("predict future refugia: no classifier")
	}

	out := []models.RefugiaPrediction{}
	for _, sp := range species {
		threshold, limited := thresholds[sp]

		var subset []models.TaggedRecord
		for _, s := range climate {
			if limited && s.TempC < threshold {
				continue
			}
			var r models.TaggedRecord
			r.Species = sp
			r.Timestamp = s.Timestamp
			r.Lat, r.Lon = s.Lat, s.Lon
			r.TempC = s.TempC
			r.Humidity, r.PrecipMM = s.Humidity, s.PrecipMM
			subset = append(subset, r)
		}
		if len(subset) == 0 {
			continue
		}

		features, built := BuildFeatures(subset, thresholds, spec.SpeciesLevels)
		if len(spec.Columns) > 0 && len(built.Columns) != len(spec.Columns) {
			return nil, fmt.Errorf("predict future refugia: %d feature columns, classifier expects %d",
				len(built.Columns), len(spec.Columns))
		}

		proba, err := c.PredictProba(features)
		if err != nil {
			return nil, fmt.Errorf("predict future refugia for %s: %w", sp, err)
		}
		if len(proba) != len(subset) {
			return nil, fmt.Errorf("predict future refugia for %s: %d probabilities for %d rows",
				sp, len(proba), len(subset))
		}

		for i, r := range subset {
			out = append(out, models.RefugiaPrediction{
				Timestamp:          r.Timestamp,
				Lat:                r.Lat,
				Lon:                r.Lon,
				TempC:              r.TempC,
				Humidity:           r.Humidity,
				PrecipMM:           r.PrecipMM,
				Species:            sp,
				RefugiaProbability: proba[i],
				IsRefugiaPred:      proba[i] >= probThreshold,
			})
		}
	}
	return out, nil
}
