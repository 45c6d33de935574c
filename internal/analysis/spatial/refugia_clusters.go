package spatial

import (
	"fmt"
	"sort"
	"time"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
	"github.com/jengzang/refugia-backend-go/internal/stats"
)

// ClusterParams configures refugia clustering
type ClusterParams struct {
	EpsKm      float64 // neighbourhood radius along the surface
	MinSamples int     // core point criterion, the point itself included
}

// ClusterResult holds the clustering output
type ClusterResult struct {
	Records  []models.TaggedRecord   // every input record; only event points carry a label
	Clusters []models.RefugiaCluster // one summary per cluster, ordered by ID
}

// ClusterRefugia clusters the heat-event records spatially and summarises
// each cluster. Records outside heat events pass through unassigned.
// When no record is in an event the result has no clusters.
func ClusterRefugia(records []models.TaggedRecord, params ClusterParams) (ClusterResult, error) {
	if params.EpsKm <= 0 {
		return ClusterResult{}, fmt.Errorf("%w: eps must be positive, got %g km", analysis.ErrInvalidParams, params.EpsKm)
	}
	if params.MinSamples < 1 {
		return ClusterResult{}, fmt.Errorf("%w: min_samples must be at least 1, got %d", analysis.ErrInvalidParams, params.MinSamples)
	}

	out := make([]models.TaggedRecord, len(records))
	copy(out, records)

	var eventIdx []int
	var points []spatial.Point
	for i := range out {
		out[i].Cluster = models.ClusterLabel{}
		if out[i].InEvent() {
			eventIdx = append(eventIdx, i)
			points = append(points, spatial.Point{Lat: out[i].Lat, Lon: out[i].Lon})
		}
	}

	if len(points) == 0 {
		return ClusterResult{Records: out, Clusters: []models.RefugiaCluster{}}, nil
	}

	labels := DBSCAN(points, spatial.AngularRadius(params.EpsKm), params.MinSamples)
	for k, i := range eventIdx {
		out[i].Cluster = labels[k]
	}

	return ClusterResult{Records: out, Clusters: SummarizeClusters(out)}, nil
}

// SummarizeClusters aggregates member records per cluster. Noise and
// unassigned records are ignored. Clusters are ordered by ID.
func SummarizeClusters(records []models.TaggedRecord) []models.RefugiaCluster {
	members := make(map[int][]models.TaggedRecord)
	for _, r := range records {
		if id, ok := r.Cluster.ID(); ok {
			members[id] = append(members[id], r)
		}
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	clusters := make([]models.RefugiaCluster, 0, len(ids))
	for _, id := range ids {
		clusters = append(clusters, summarizeCluster(id, members[id]))
	}
	return clusters
}

func summarizeCluster(id int, members []models.TaggedRecord) models.RefugiaCluster {
	pts := make([]spatial.Point, len(members))
	individuals := make(map[string]struct{})
	events := make(map[int64]struct{})
	years := make(map[int]struct{})
	speciesSet := make(map[string]struct{})
	species := make([]string, len(members))

	var first, last time.Time
	for i, r := range members {
		pts[i] = spatial.Point{Lat: r.Lat, Lon: r.Lon}
		individuals[r.IndividualID] = struct{}{}
		if r.HeatEventID != nil {
			events[*r.HeatEventID] = struct{}{}
		}
		years[r.Timestamp.Year()] = struct{}{}
		speciesSet[r.Species] = struct{}{}
		species[i] = r.Species

		if first.IsZero() || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if last.IsZero() || r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}

	centroid := spatial.Centroid(pts)

	yearList := make([]int, 0, len(years))
	for y := range years {
		yearList = append(yearList, y)
	}
	sort.Ints(yearList)

	speciesList := make([]string, 0, len(speciesSet))
	for s := range speciesSet {
		speciesList = append(speciesList, s)
	}
	sort.Strings(speciesList)

	return models.RefugiaCluster{
		ID:              id,
		CentroidLat:     centroid.Lat,
		CentroidLon:     centroid.Lon,
		NumPoints:       len(members),
		NumIndividuals:  len(individuals),
		NumEvents:       len(events),
		FirstSeen:       first,
		LastSeen:        last,
		Years:           yearList,
		SpeciesList:     speciesList,
		DominantSpecies: stats.ModeString(species),
	}
}
