package models

import (
	"math"
	"time"
)

// TrajectoryPoint represents one telemetry fix of one individual.
// Missing coordinates are NaN and a missing timestamp is the zero time;
// the cleaner drops both.
type TrajectoryPoint struct {
	IndividualID string    `json:"individual_id"`
	Species      string    `json:"species"`
	Timestamp    time.Time `json:"timestamp"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	SpeedMPS     *float64  `json:"speed_mps,omitempty"` // supplied or derived, nil when indeterminate
}

// HasPosition reports whether the fix carries a timestamp and numeric coordinates
func (p TrajectoryPoint) HasPosition() bool {
	return !p.Timestamp.IsZero() && !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

// ClimateSample represents one reanalysis reading at one grid cell center
type ClimateSample struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	TempC     float64   `json:"temp_c"`
	Humidity  *float64  `json:"humidity,omitempty"` // 0-100
	PrecipMM  *float64  `json:"precip_mm,omitempty"`
}

// GridKey identifies a climate grid cell
type GridKey struct {
	Lat float64
	Lon float64
}

// Key returns the grid cell of the sample
func (s ClimateSample) Key() GridKey {
	return GridKey{Lat: s.Lat, Lon: s.Lon}
}
