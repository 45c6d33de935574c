package spatial

import (
	"github.com/golang/geo/s1"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/spatial"
)

// DBSCAN performs density-based clustering of points on the sphere.
// A point's neighbourhood is every point within radius of it, the point
// itself included; points with at least minSamples neighbours are core
// points. Cluster IDs are assigned from 0 in order of discovery over the
// input order. Points reachable from no core point are noise.
func DBSCAN(points []spatial.Point, radius s1.Angle, minSamples int) []models.ClusterLabel {
	labels := make([]models.ClusterLabel, len(points))
	if len(points) == 0 {
		return labels
	}

	index := spatial.NewPointIndex(points)
	visited := make([]bool, len(points))
	queued := make([]bool, len(points))
	clusterID := 0

	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := index.Within(points[i].Lat, points[i].Lon, radius)
		if len(neighbors) < minSamples {
			labels[i] = models.Noise()
			continue
		}

		expandCluster(points, index, labels, visited, queued, i, neighbors, clusterID, radius, minSamples)
		clusterID++
	}

	return labels
}

// expandCluster grows a cluster breadth-first from a core point. Each point
// enters the queue at most once over the whole run.
func expandCluster(points []spatial.Point, index *spatial.PointIndex, labels []models.ClusterLabel,
	visited, queued []bool, seed int, neighbors []int, clusterID int, radius s1.Angle, minSamples int) {

	labels[seed] = models.Member(clusterID)

	var queue []int
	enqueue := func(candidates []int) {
		for _, j := range candidates {
			if labels[j].IsNoise() {
				labels[j] = models.Member(clusterID) // noise becomes border point
				continue
			}
			if visited[j] || queued[j] {
				continue
			}
			queued[j] = true
			queue = append(queue, j)
		}
	}
	enqueue(neighbors)

	for k := 0; k < len(queue); k++ {
		idx := queue[k]
		visited[idx] = true
		labels[idx] = models.Member(clusterID)

		next := index.Within(points[idx].Lat, points[idx].Lon, radius)
		if len(next) >= minSamples {
			enqueue(next)
		}
	}
}
