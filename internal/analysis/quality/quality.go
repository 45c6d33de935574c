// Package quality summarises input tables and gates the pipeline on missing rates.
package quality

import (
	"fmt"
	"math"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/stats"
)

// DefaultMaxMissingRate is the largest tolerated fraction of missing values
const DefaultMaxMissingRate = 0.1

// TrajectorySummary counts fixes, individuals and species and reports the
// missing-coordinate rates.
func TrajectorySummary(points []models.TrajectoryPoint) models.TrajectoryQuality {
	individuals := make(map[string]struct{})
	species := make(map[string]struct{})
	lats := make([]float64, len(points))
	lons := make([]float64, len(points))

	for i, p := range points {
		individuals[p.IndividualID] = struct{}{}
		species[p.Species] = struct{}{}
		lats[i] = p.Lat
		lons[i] = p.Lon
	}

	return models.TrajectoryQuality{
		Points:      len(points),
		Individuals: len(individuals),
		Species:     len(species),
		MissingLat:  stats.MissingRate(lats),
		MissingLon:  stats.MissingRate(lons),
	}
}

// ClimateSummary reports missing rates and the observed temperature range.
// The range is zero when no temperature is present.
func ClimateSummary(samples []models.ClimateSample) models.ClimateQuality {
	cells := make(map[models.GridKey]struct{})
	temps := make([]float64, len(samples))
	humidity := make([]float64, len(samples))
	precip := make([]float64, len(samples))

	for i, s := range samples {
		cells[s.Key()] = struct{}{}
		temps[i] = s.TempC
		humidity[i] = optional(s.Humidity)
		precip[i] = optional(s.PrecipMM)
	}

	q := models.ClimateQuality{
		Rows:            len(samples),
		GridCells:       len(cells),
		MissingTemp:     stats.MissingRate(temps),
		MissingHumidity: stats.MissingRate(humidity),
		MissingPrecip:   stats.MissingRate(precip),
	}
	if present := stats.DropNaN(temps); len(present) > 0 {
		q.TempMin = stats.Min(present)
		q.TempMax = stats.Max(present)
	}
	return q
}

// Assert fails with ErrQuality when latitude, longitude or temperature
// missing rates exceed maxMissingRate.
func Assert(points []models.TrajectoryPoint, samples []models.ClimateSample, maxMissingRate float64) error {
	traj := TrajectorySummary(points)
	climate := ClimateSummary(samples)

	switch {
	case traj.MissingLat > maxMissingRate:
		return fmt.Errorf("%w: trajectory latitude missing rate %.3f exceeds %.3f", analysis.ErrQuality, traj.MissingLat, maxMissingRate)
	case traj.MissingLon > maxMissingRate:
		return fmt.Errorf("%w: trajectory longitude missing rate %.3f exceeds %.3f", analysis.ErrQuality, traj.MissingLon, maxMissingRate)
	case climate.MissingTemp > maxMissingRate:
		return fmt.Errorf("%w: climate temperature missing rate %.3f exceeds %.3f", analysis.ErrQuality, climate.MissingTemp, maxMissingRate)
	}
	return nil
}

func optional(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
