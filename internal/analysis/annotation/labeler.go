package annotation

import (
	"fmt"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
)

// DefaultRadiusKm is the distance to a refugia centroid under which a point is positive
const DefaultRadiusKm = 3.0

// Label measures each point's great-circle distance to the nearest refugia
// centroid and marks the point positive when that distance is at most
// radiusKm. Output order follows the input.
func Label(points []models.TaggedRecord, refugia []models.RefugiaCluster, radiusKm float64) ([]models.LabeledPoint, error) {
	if len(refugia) == 0 {
		return nil, analysis.ErrNoRefugia
	}
	if radiusKm < 0 {
		return nil, fmt.Errorf("%w: label radius must not be negative, got %g km", analysis.ErrInvalidParams, radiusKm)
	}

	centroids := make([]spatial.Point, len(refugia))
	for i, c := range refugia {
		centroids[i] = spatial.Point{Lat: c.CentroidLat, Lon: c.CentroidLon}
	}
	index := spatial.NewPointIndex(centroids)

	labeled := make([]models.LabeledPoint, len(points))
	for i, p := range points {
		_, distKm := index.Nearest(p.Lat, p.Lon)
		labeled[i] = models.LabeledPoint{
			TaggedRecord:      p,
			RefugiaDistanceKm: distKm,
			IsRefugiaPoint:    distKm <= radiusKm,
		}
	}
	return labeled, nil
}

// EventPoints returns the records that belong to a heat event
func EventPoints(records []models.TaggedRecord) []models.TaggedRecord {
	out := make([]models.TaggedRecord, 0, len(records))
	for _, r := range records {
		if r.InEvent() {
			out = append(out, r)
		}
	}
	return out
}

// CountPositive returns the number of points inside a refugia radius
func CountPositive(points []models.LabeledPoint) int {
	n := 0
	for _, p := range points {
		if p.IsRefugiaPoint {
			n++
		}
	}
	return n
}
