package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Constants
const (
	EarthRadiusKm     = 6371.0088 // Earth's mean radius in kilometers (IUGG)
	EarthRadiusMeters = EarthRadiusKm * 1000
)

// HaversineKm calculates the great-circle distance between two points in kilometers
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// AngularRadius converts a surface distance in kilometers to the central
// angle it subtends on a sphere of EarthRadiusKm.
func AngularRadius(km float64) s1.Angle {
	return s1.Angle(km / EarthRadiusKm)
}

// AngleKm converts a central angle back to kilometers
func AngleKm(a s1.Angle) float64 {
	return a.Radians() * EarthRadiusKm
}

// ValidCoordinate reports whether lat/lon are finite and inside [-90,90]/[-180,180]
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// unitVector embeds a lat/lon on the unit sphere
func unitVector(lat, lon float64) r3.Vector {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon)).Vector
}
