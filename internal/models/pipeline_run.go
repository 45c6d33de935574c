package models

import "time"

// PipelineRun represents one execution of the refugia pipeline
type PipelineRun struct {
	ID string `json:"id" db:"id"` // UUID

	// Status
	Status          string `json:"status" db:"status"` // pending, running, completed, failed
	Stage           string `json:"stage,omitempty" db:"stage"`
	ProgressPercent int    `json:"progress_percent" db:"progress_percent"`

	// Input parameters
	ParamsJSON     string `json:"params_json,omitempty" db:"params_json"`
	TrajectoryRows int    `json:"trajectory_rows" db:"trajectory_rows"`
	ClimateRows    int    `json:"climate_rows" db:"climate_rows"`

	// Results
	ResultSummary string `json:"result_summary,omitempty" db:"result_summary"` // JSON object with summary statistics
	ErrorMessage  string `json:"error_message,omitempty" db:"error_message"`

	// Metadata
	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunStatus constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunSummary is stored as the result summary of a completed run
type RunSummary struct {
	CleanTrajectoryRows int     `json:"clean_trajectory_rows"`
	CleanClimateRows    int     `json:"clean_climate_rows"`
	AlignedRows         int     `json:"aligned_rows"`
	HeatEvents          int     `json:"heat_events"`
	Clusters            int     `json:"clusters"`
	RefugiaClusters     int     `json:"refugia_clusters"`
	LabeledPoints       int     `json:"labeled_points"`
	PositiveLabels      int     `json:"positive_labels"`
	FuturePredictions   int     `json:"future_predictions"`
	ThresholdSource     string  `json:"threshold_source"` // configured, quantile, default
	DurationSeconds     float64 `json:"duration_seconds"`

	TrajectoryQuality TrajectoryQuality `json:"trajectory_quality"`
	ClimateQuality    ClimateQuality    `json:"climate_quality"`
}
