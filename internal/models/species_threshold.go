package models

// SpeciesThreshold is the heat threshold applied to one species in a run
type SpeciesThreshold struct {
	RunID          string  `json:"run_id" db:"run_id"`
	Species        string  `json:"species" db:"species"`
	HeatThresholdC float64 `json:"heat_threshold_c" db:"heat_threshold_c"`
	Source         string  `json:"source" db:"source"` // configured or quantile
}

// Threshold sources
const (
	ThresholdSourceConfigured = "configured"
	ThresholdSourceQuantile   = "quantile"
	ThresholdSourceDefault    = "default"
)
