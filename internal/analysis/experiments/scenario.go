package experiments

import (
	"sort"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
)

// SpeciesShift is the displacement of one species' predicted refugia
// centroid between two climate scenarios
type SpeciesShift struct {
	Species string  `json:"species"`
	LatA    float64 `json:"lat_a"`
	LonA    float64 `json:"lon_a"`
	LatB    float64 `json:"lat_b"`
	LonB    float64 `json:"lon_b"`
	ShiftKm float64 `json:"shift_km"`
}

// ScenarioComparison holds the shifts between two consecutive scenarios
type ScenarioComparison struct {
	ScenarioA string         `json:"scenario_a"`
	ScenarioB string         `json:"scenario_b"`
	Shifts    []SpeciesShift `json:"shifts"`
}

// ScenarioShift compares the mean location of predictions with
// probability >= probThreshold per species. Only species with such
// predictions in both scenarios are reported, sorted by species.
func ScenarioShift(a, b []models.RefugiaPrediction, probThreshold float64) []SpeciesShift {
	centA := predictedCentroids(a, probThreshold)
	centB := predictedCentroids(b, probThreshold)

	out := make([]SpeciesShift, 0, len(centA))
	for sp, pa := range centA {
		pb, ok := centB[sp]
		if !ok {
			continue
		}
		out = append(out, SpeciesShift{
			Species: sp,
			LatA:    pa.Lat, LonA: pa.Lon,
			LatB: pb.Lat, LonB: pb.Lon,
			ShiftKm: spatial.HaversineKm(pa.Lat, pa.Lon, pb.Lat, pb.Lon),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Species < out[j].Species })
	return out
}

// CompareScenarios runs ScenarioShift over each pair of consecutive
// scenarios in name order
func CompareScenarios(predictions map[string][]models.RefugiaPrediction, probThreshold float64) []ScenarioComparison {
	names := make([]string, 0, len(predictions))
	for name := range predictions {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []ScenarioComparison
	for i := 1; i < len(names); i++ {
		out = append(out, ScenarioComparison{
			ScenarioA: names[i-1],
			ScenarioB: names[i],
			Shifts:    ScenarioShift(predictions[names[i-1]], predictions[names[i]], probThreshold),
		})
	}
	return out
}

func predictedCentroids(predictions []models.RefugiaPrediction, probThreshold float64) map[string]spatial.Point {
	points := make(map[string][]spatial.Point)
	for _, p := range predictions {
		if p.RefugiaProbability >= probThreshold {
			points[p.Species] = append(points[p.Species], spatial.Point{Lat: p.Lat, Lon: p.Lon})
		}
	}
	out := make(map[string]spatial.Point, len(points))
	for sp, pts := range points {
		out[sp] = spatial.Centroid(pts)
	}
	return out
}
