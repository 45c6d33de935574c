// Package experiments runs the robustness analyses over a pipeline's
// intermediate tables.
package experiments

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/refugia-backend-go/internal/analysis/behavior"
	clustering "github.com/jengzang/refugia-backend-go/internal/analysis/spatial"
	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
	"github.com/jengzang/refugia-backend-go/internal/stats"
)

// DefaultDeltas are the threshold shifts, in °C, of the sensitivity sweep
var DefaultDeltas = []float64{-2, -1, 0, 1, 2}

// SensitivityRow is the clustering outcome of one threshold shift
type SensitivityRow struct {
	DeltaC      float64 `json:"delta_c"`
	NumEvents   int     `json:"num_events"`
	NumClusters int     `json:"num_clusters"`
	NumRefugia  int     `json:"num_refugia"`
}

// YearClusters is the clustering of one calendar year's heat-event points
type YearClusters struct {
	Year     int                     `json:"year"`
	Clusters []models.RefugiaCluster `json:"clusters"`
}

// Consistency measures how stable cluster locations are across years.
// Shift fields are nil when no cluster spans two years.
type Consistency struct {
	Clusters              int      `json:"clusters"`
	Refugia               int      `json:"refugia"`
	RefugiaRate           float64  `json:"refugia_rate"`
	MeanCentroidShiftKm   *float64 `json:"mean_centroid_shift_km"`
	MedianCentroidShiftKm *float64 `json:"median_centroid_shift_km"`
}

// Comparison relates density-based refugia to the coolest heat-event points
type Comparison struct {
	CoolQuantile float64  `json:"cool_quantile"`
	OverlapRate  *float64 `json:"overlap_rate"` // nil when either set is empty
}

// Report bundles every experiment of a run
type Report struct {
	Sensitivity      []SensitivityRow `json:"sensitivity"`
	HeatwaveResponse []YearClusters   `json:"heatwave_response"`
	Consistency      Consistency      `json:"spatial_consistency"`
	ModelComparison  Comparison       `json:"model_comparison"`

	ScenarioShifts []ScenarioComparison `json:"scenario_shifts,omitempty"`
}

// Sensitivity re-runs detection and clustering with every threshold
// (per-species and default) shifted by each delta. Rows follow deltas.
func Sensitivity(ctx context.Context, aligned []models.AlignedRecord, events behavior.EventParams,
	cluster clustering.ClusterParams, deltas []float64) ([]SensitivityRow, error) {

	rows := make([]SensitivityRow, len(deltas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(events.Workers))

	for i, delta := range deltas {
		i, delta := i, delta
		g.Go(func() error {
			shifted := events
			shifted.Thresholds = make(map[string]float64, len(events.Thresholds))
			for species, t := range events.Thresholds {
				shifted.Thresholds[species] = t + delta
			}
			shifted.DefaultThresholdC = events.DefaultThresholdC + delta
			shifted.Workers = 1

			detection, err := behavior.DetectEvents(gctx, aligned, shifted)
			if err != nil {
				return err
			}
			result, err := clustering.ClusterRefugia(detection.Records, cluster)
			if err != nil {
				return err
			}
			rows[i] = SensitivityRow{
				DeltaC:      delta,
				NumEvents:   len(detection.Events),
				NumClusters: len(result.Clusters),
				NumRefugia:  len(models.FilterRefugia(result.Clusters)),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// HeatwaveResponse clusters each calendar year of the tagged records on
// its own, in ascending year order over the years present in records.
func HeatwaveResponse(records []models.TaggedRecord, cluster clustering.ClusterParams) ([]YearClusters, error) {
	byYear := make(map[int][]models.TaggedRecord)
	for _, r := range records {
		y := r.Timestamp.Year()
		byYear[y] = append(byYear[y], r)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make([]YearClusters, 0, len(years))
	for _, y := range years {
		result, err := clustering.ClusterRefugia(byYear[y], cluster)
		if err != nil {
			return nil, err
		}
		out = append(out, YearClusters{Year: y, Clusters: result.Clusters})
	}
	return out, nil
}

// SpatialConsistency computes the refugia rate of the clusters and the
// great-circle shift of each cluster's yearly member centroid between
// consecutive observed years.
func SpatialConsistency(clusters []models.RefugiaCluster, records []models.TaggedRecord) Consistency {
	c := Consistency{
		Clusters: len(clusters),
		Refugia:  len(models.FilterRefugia(clusters)),
	}
	if c.Clusters > 0 {
		c.RefugiaRate = float64(c.Refugia) / float64(c.Clusters)
	}

	type yearKey struct{ cluster, year int }
	members := make(map[yearKey][]spatial.Point)
	yearsOf := make(map[int][]int)
	for _, r := range records {
		id, ok := r.Cluster.ID()
		if !ok {
			continue
		}
		k := yearKey{id, r.Timestamp.Year()}
		if _, seen := members[k]; !seen {
			yearsOf[id] = append(yearsOf[id], k.year)
		}
		members[k] = append(members[k], spatial.Point{Lat: r.Lat, Lon: r.Lon})
	}

	var shifts []float64
	for id, years := range yearsOf {
		sort.Ints(years)
		for i := 1; i < len(years); i++ {
			prev := spatial.Centroid(members[yearKey{id, years[i-1]}])
			curr := spatial.Centroid(members[yearKey{id, years[i]}])
			shifts = append(shifts, spatial.HaversineKm(prev.Lat, prev.Lon, curr.Lat, curr.Lon))
		}
	}

	if len(shifts) > 0 {
		mean, median := stats.Mean(shifts), stats.Median(shifts)
		c.MeanCentroidShiftKm = &mean
		c.MedianCentroidShiftKm = &median
	}
	return c
}

// DefaultCoolQuantile selects the coolest tenth of heat-event points
const DefaultCoolQuantile = 0.1

// ModelComparison measures how many distinct clustered locations are also
// among the coolest heat-event locations. Locations are compared at four
// decimal places.
func ModelComparison(records []models.TaggedRecord, coolQuantile float64) Comparison {
	out := Comparison{CoolQuantile: coolQuantile}
	if len(records) == 0 {
		return out
	}

	temps := make([]float64, len(records))
	for i, r := range records {
		temps[i] = r.TempC
	}
	cutoff := stats.Quantile(temps, coolQuantile)

	type loc struct{ lat, lon float64 }
	round := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }

	cool := make(map[loc]struct{})
	clustered := make(map[loc]struct{})
	for _, r := range records {
		l := loc{round(r.Lat), round(r.Lon)}
		if r.TempC <= cutoff {
			cool[l] = struct{}{}
		}
		if r.Cluster.IsMember() {
			clustered[l] = struct{}{}
		}
	}
	if len(cool) == 0 || len(clustered) == 0 {
		return out
	}

	overlap := 0
	for l := range clustered {
		if _, ok := cool[l]; ok {
			overlap++
		}
	}
	rate := float64(overlap) / float64(len(clustered))
	out.OverlapRate = &rate
	return out
}

func workers(n int) int {
	if n <= 0 {
		return len(DefaultDeltas)
	}
	return n
}
