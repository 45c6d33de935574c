package pipeline

import (
	"math"
	"sort"
	"strings"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/stats"
)

// ThresholdPlan is the per-species heat threshold policy of a run
type ThresholdPlan struct {
	Thresholds map[string]float64        // keyed by observed species
	Rows       []models.SpeciesThreshold // one per observed species, sorted
	Source     string                    // configured, quantile or default
}

// ResolveThresholds decides the heat threshold of every observed species.
// Configured thresholds win when any are given; their keys match species
// case-insensitively. Otherwise each species gets the given quantile of its
// aligned temperatures. Species left without a value use the default at
// detection time.
func ResolveThresholds(aligned []models.AlignedRecord, configured map[string]float64, quantile, defaultC float64) ThresholdPlan {
	temps := make(map[string][]float64)
	for _, r := range aligned {
		temps[r.Species] = append(temps[r.Species], r.TempC)
	}
	species := make([]string, 0, len(temps))
	for s := range temps {
		species = append(species, s)
	}
	sort.Strings(species)

	plan := ThresholdPlan{
		Thresholds: make(map[string]float64, len(species)),
		Rows:       make([]models.SpeciesThreshold, 0, len(species)),
		Source:     models.ThresholdSourceDefault,
	}

	if len(configured) > 0 {
		plan.Source = models.ThresholdSourceConfigured
		folded := make(map[string]float64, len(configured))
		for k, v := range configured {
			folded[strings.ToLower(k)] = v
		}
		for _, s := range species {
			if v, ok := configured[s]; ok {
				plan.set(s, v, models.ThresholdSourceConfigured)
			} else if v, ok := folded[strings.ToLower(s)]; ok {
				plan.set(s, v, models.ThresholdSourceConfigured)
			} else {
				plan.Rows = append(plan.Rows, models.SpeciesThreshold{
					Species: s, HeatThresholdC: defaultC, Source: models.ThresholdSourceDefault,
				})
			}
		}
		return plan
	}

	for _, s := range species {
		if v := stats.Quantile(stats.DropNaN(temps[s]), quantile); !math.IsNaN(v) {
			plan.set(s, v, models.ThresholdSourceQuantile)
			plan.Source = models.ThresholdSourceQuantile
		}
	}
	return plan
}

func (p *ThresholdPlan) set(species string, value float64, source string) {
	p.Thresholds[species] = value
	p.Rows = append(p.Rows, models.SpeciesThreshold{Species: species, HeatThresholdC: value, Source: source})
}
