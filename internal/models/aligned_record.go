package models

import "time"

// AlignedRecord is a trajectory point joined with its nearest climate sample
// in space (grid cell) and time (within tolerance).
type AlignedRecord struct {
	TrajectoryPoint

	GridLat        float64   `json:"grid_lat"`
	GridLon        float64   `json:"grid_lon"`
	GridDistanceKm float64   `json:"grid_distance_km"` // spatial snap error
	ClimateTime    time.Time `json:"climate_timestamp"`

	TempC    float64  `json:"temp_c"`
	Humidity *float64 `json:"humidity,omitempty"`
	PrecipMM *float64 `json:"precip_mm,omitempty"`
}

// TimeOffset returns the absolute gap between fix and climate timestamps
func (r AlignedRecord) TimeOffset() time.Duration {
	d := r.Timestamp.Sub(r.ClimateTime)
	if d < 0 {
		return -d
	}
	return d
}

// TaggedRecord is an AlignedRecord annotated by the segmentation and
// clustering stages.
type TaggedRecord struct {
	AlignedRecord

	HeatThresholdC float64      `json:"heat_threshold_c"`
	HeatExposure   bool         `json:"heat_exposure"`
	HeatEventID    *int64       `json:"heat_event_id,omitempty"`
	Cluster        ClusterLabel `json:"cluster_id"`
}

// InEvent reports whether the record belongs to a qualifying heat event
func (r TaggedRecord) InEvent() bool {
	return r.HeatEventID != nil
}
