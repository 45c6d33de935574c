package spatial

// Point represents a geographic point
type Point struct {
	Lat float64
	Lon float64
}

// Centroid returns the arithmetic mean of the coordinates.
// Refugia centroids are defined this way; no spherical averaging is done.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	n := float64(len(points))
	return Point{
		Lat: sumLat / n,
		Lon: sumLon / n,
	}
}
