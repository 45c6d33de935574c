package analysis

import (
	"context"
)

// Stage names, in pipeline order
const (
	StageClean       = "clean"
	StageQuality     = "quality"
	StageAlign       = "align"
	StageThresholds  = "thresholds"
	StageDetect      = "detect_events"
	StageCluster     = "cluster_refugia"
	StageLabel       = "label_points"
	StageFeatures    = "build_features"
	StagePredict     = "predict_future"
	StageExperiments = "experiments"
	StagePersist     = "persist"
)

// Stages lists every stage in execution order
var Stages = []string{
	StageClean, StageQuality, StageAlign, StageThresholds, StageDetect,
	StageCluster, StageLabel, StageFeatures, StagePredict, StageExperiments, StagePersist,
}

// Progress represents the progress of a pipeline run
type Progress struct {
	Stage     string  // Stage currently executing
	Processed int     // Stages finished
	Total     int     // Stages in the run
	Percent   float64 // Progress percentage (0-100)
	Message   string  // Optional progress message
}

// NewProgress computes the progress of a run that has entered stage
func NewProgress(stage string) Progress {
	total := len(Stages)
	done := 0
	for i, s := range Stages {
		if s == stage {
			done = i
			break
		}
	}
	return Progress{
		Stage:     stage,
		Processed: done,
		Total:     total,
		Percent:   float64(done) / float64(total) * 100.0,
	}
}

// Tracker records run lifecycle transitions. The repository implements it
// against pipeline_runs; a nil Tracker disables tracking.
type Tracker interface {
	// MarkRunning marks a run as running
	MarkRunning(ctx context.Context, runID string) error

	// UpdateProgress records the stage a run has entered
	UpdateProgress(ctx context.Context, runID string, progress Progress) error

	// MarkCompleted marks a run as completed with a JSON summary
	MarkCompleted(ctx context.Context, runID string, summary string) error

	// MarkFailed marks a run as failed with an error message
	MarkFailed(ctx context.Context, runID string, errorMsg string) error
}

// NopTracker discards all transitions
type NopTracker struct{}

func (NopTracker) MarkRunning(context.Context, string) error             { return nil }
func (NopTracker) UpdateProgress(context.Context, string, Progress) error { return nil }
func (NopTracker) MarkCompleted(context.Context, string, string) error   { return nil }
func (NopTracker) MarkFailed(context.Context, string, string) error      { return nil }
