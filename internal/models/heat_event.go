package models

import "time"

// HeatEvent is a maximal run of one individual's records at or above its
// heat threshold, long enough to satisfy the adaptive minimum point count.
type HeatEvent struct {
	ID            int64     `json:"heat_event_id"`
	IndividualID  string    `json:"individual_id"`
	Species       string    `json:"species"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DurationHours float64   `json:"duration_hours"`
	NumPoints     int       `json:"num_points"`
	MeanTempC     float64   `json:"mean_temp_c"`
	MaxTempC      float64   `json:"max_temp_c"`
}
