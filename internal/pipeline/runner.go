// Package pipeline chains the analysis stages of a refugia run and records
// their progress, metrics and artifacts.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/refugia-backend-go/internal/analysis"
	"github.com/jengzang/refugia-backend-go/internal/analysis/annotation"
	"github.com/jengzang/refugia-backend-go/internal/analysis/behavior"
	"github.com/jengzang/refugia-backend-go/internal/analysis/experiments"
	"github.com/jengzang/refugia-backend-go/internal/analysis/foundation"
	"github.com/jengzang/refugia-backend-go/internal/analysis/quality"
	clustering "github.com/jengzang/refugia-backend-go/internal/analysis/spatial"
	"github.com/jengzang/refugia-backend-go/internal/config"
	"github.com/jengzang/refugia-backend-go/internal/logger"
	"github.com/jengzang/refugia-backend-go/internal/metrics"
	"github.com/jengzang/refugia-backend-go/internal/model"
	"github.com/jengzang/refugia-backend-go/internal/models"
)

// Store persists the artifacts of a run
type Store interface {
	SaveThresholds(ctx context.Context, runID string, thresholds []models.SpeciesThreshold) error
	SaveDetection(ctx context.Context, runID string, records []models.TaggedRecord, events []models.HeatEvent, clusters []models.RefugiaCluster) error
	SaveLabeled(ctx context.Context, runID string, points []models.LabeledPoint) error
	SaveExperiments(ctx context.Context, runID string, report any) error
}

// Input holds the raw tables of a run. Future maps scenario names to
// projected climate tables; they are scored only when a classifier is set.
type Input struct {
	Trajectory []models.TrajectoryPoint
	Climate    []models.ClimateSample
	Future     map[string][]models.ClimateSample
}

// Result holds every intermediate table of a successful run
type Result struct {
	RunID       string
	Trajectory  []models.TrajectoryPoint
	Climate     []models.ClimateSample
	Aligned     []models.AlignedRecord
	Thresholds  ThresholdPlan
	Records     []models.TaggedRecord
	Events      []models.HeatEvent
	Clusters    []models.RefugiaCluster
	Refugia     []models.RefugiaCluster
	Labeled     []models.LabeledPoint
	Features    [][]float64
	FeatureSpec model.FeatureSpec
	Predictions map[string][]models.RefugiaPrediction
	Experiments experiments.Report
	Summary     models.RunSummary
}

// Runner executes pipeline runs. It is safe for concurrent use when its
// collaborators are.
type Runner struct {
	cfg        config.PipelineConfig
	store      Store
	tracker    analysis.Tracker
	metrics    *metrics.PipelineMetrics
	logger     *zap.Logger
	classifier model.Classifier
}

// Option configures a Runner
type Option func(*Runner)

// WithStore persists artifacts to s
func WithStore(s Store) Option { return func(r *Runner) { r.store = s } }

// WithTracker records run status transitions to t
func WithTracker(t analysis.Tracker) Option { return func(r *Runner) { r.tracker = t } }

// WithMetrics records stage metrics to m
func WithMetrics(m *metrics.PipelineMetrics) Option { return func(r *Runner) { r.metrics = m } }

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithClassifier fits c on the training set of every run
func WithClassifier(c model.Classifier) Option { return func(r *Runner) { r.classifier = c } }

// NewRunner creates a runner for cfg
func NewRunner(cfg config.PipelineConfig, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		tracker: analysis.NopTracker{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.Component(r.logger, "pipeline")
	return r
}

// Run executes every stage over in. Upstream artifacts are persisted before
// the run fails for lack of heat events or refugia.
func (r *Runner) Run(ctx context.Context, runID string, in Input) (result *Result, err error) {
	start := time.Now()
	log := r.logger.With(zap.String("run_id", runID))

	if err := r.tracker.MarkRunning(ctx, runID); err != nil {
		return nil, fmt.Errorf("failed to mark run as running: %w", err)
	}
	r.metrics.RunStarted()
	log.Info("pipeline run started",
		zap.Int("trajectory_rows", len(in.Trajectory)),
		zap.Int("climate_rows", len(in.Climate)))

	defer func() {
		if err != nil {
			r.metrics.RunFinished(models.RunStatusFailed)
			// The run context may be gone; the failure must still be recorded.
			if terr := r.tracker.MarkFailed(context.WithoutCancel(ctx), runID, err.Error()); terr != nil {
				log.Error("failed to mark run as failed", zap.Error(terr))
			}
			log.Error("pipeline run failed", zap.Error(err))
			return
		}
		r.metrics.RunFinished(models.RunStatusCompleted)
	}()

	res := &Result{RunID: runID}
	p := r.cfg

	// Clean
	done := r.enter(ctx, log, runID, analysis.StageClean)
	res.Trajectory = foundation.Clean(in.Trajectory, foundation.CleanThresholds{
		MaxSpeedMPS:     p.MaxSpeedMPS,
		MinFixIntervalS: p.MinFixIntervalS,
	})
	res.Climate = foundation.CleanClimate(in.Climate)
	done(len(in.Trajectory)+len(in.Climate), len(res.Trajectory)+len(res.Climate))

	// Summaries describe the ingested tables; the gate checks what
	// cleaning kept. Malformed rows dropped by the cleaner never fail a run.
	done = r.enter(ctx, log, runID, analysis.StageQuality)
	res.Summary.TrajectoryQuality = quality.TrajectorySummary(in.Trajectory)
	res.Summary.ClimateQuality = quality.ClimateSummary(in.Climate)
	if err := quality.Assert(res.Trajectory, res.Climate, p.MaxMissingRate); err != nil {
		return nil, err
	}
	done(len(in.Trajectory)+len(in.Climate), len(res.Trajectory)+len(res.Climate))

	// Align
	done = r.enter(ctx, log, runID, analysis.StageAlign)
	res.Aligned, err = foundation.Align(ctx, res.Trajectory, res.Climate, foundation.AlignParams{
		TimeTolerance: p.TimeTolerance(),
		Workers:       p.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	done(len(res.Trajectory), len(res.Aligned))

	// Thresholds
	done = r.enter(ctx, log, runID, analysis.StageThresholds)
	res.Thresholds = ResolveThresholds(res.Aligned, p.SpeciesThresholds, p.AutoThresholdQuantile, p.HeatThresholdDefaultC)
	log.Info("heat thresholds resolved",
		zap.String("source", res.Thresholds.Source),
		zap.Int("species", len(res.Thresholds.Rows)))
	done(len(res.Aligned), len(res.Thresholds.Rows))

	// Detect
	done = r.enter(ctx, log, runID, analysis.StageDetect)
	eventParams := behavior.EventParams{
		Thresholds:        res.Thresholds.Thresholds,
		DefaultThresholdC: p.HeatThresholdDefaultC,
		WindowHours:       p.HeatWindowHours,
		Workers:           p.Workers,
	}
	detection, err := behavior.DetectEvents(ctx, res.Aligned, eventParams)
	if err != nil {
		return nil, fmt.Errorf("detect heat events: %w", err)
	}
	res.Events = detection.Events
	done(len(res.Aligned), len(res.Events))

	// Cluster
	done = r.enter(ctx, log, runID, analysis.StageCluster)
	clusterParams := clustering.ClusterParams{EpsKm: p.ClusteringEpsKm, MinSamples: p.ClusteringMinSamples}
	clustered, err := clustering.ClusterRefugia(detection.Records, clusterParams)
	if err != nil {
		return nil, fmt.Errorf("cluster refugia: %w", err)
	}
	res.Records = clustered.Records
	res.Clusters = clustered.Clusters
	res.Refugia = models.FilterRefugia(res.Clusters)
	done(len(res.Records), len(res.Clusters))

	if err := r.persistDetection(ctx, res); err != nil {
		return nil, err
	}

	heatPoints := annotation.EventPoints(res.Records)
	if len(heatPoints) == 0 {
		return nil, analysis.ErrNoHeatEvents
	}

	// Label
	done = r.enter(ctx, log, runID, analysis.StageLabel)
	res.Labeled, err = annotation.Label(heatPoints, res.Refugia, p.LabelRadiusKm)
	if err != nil {
		return nil, fmt.Errorf("label points: %w", err)
	}
	done(len(heatPoints), annotation.CountPositive(res.Labeled))

	// Features and optional fit
	done = r.enter(ctx, log, runID, analysis.StageFeatures)
	res.Features, res.FeatureSpec = model.BuildFeatures(model.TaggedRecords(res.Labeled), res.Thresholds.Thresholds, nil)
	if r.classifier != nil {
		if err := r.classifier.Fit(res.Features, model.Labels(res.Labeled)); err != nil {
			return nil, fmt.Errorf("fit classifier: %w", err)
		}
	}
	done(len(res.Labeled), len(res.Features))

	// Future scenarios
	done = r.enter(ctx, log, runID, analysis.StagePredict)
	res.Predictions, err = r.predict(in.Future, res)
	if err != nil {
		return nil, err
	}
	futureRows := 0
	for _, table := range in.Future {
		futureRows += len(table)
	}
	done(futureRows, countPredictions(res.Predictions))

	// Experiments
	done = r.enter(ctx, log, runID, analysis.StageExperiments)
	res.Experiments, err = r.experiments(ctx, res, eventParams, clusterParams, heatPoints)
	if err != nil {
		return nil, fmt.Errorf("experiments: %w", err)
	}
	done(len(res.Records), len(res.Experiments.Sensitivity))

	// Persist
	done = r.enter(ctx, log, runID, analysis.StagePersist)
	if r.store != nil {
		if err := r.store.SaveLabeled(ctx, runID, res.Labeled); err != nil {
			return nil, fmt.Errorf("save labeled points: %w", err)
		}
		if err := r.store.SaveExperiments(ctx, runID, res.Experiments); err != nil {
			return nil, fmt.Errorf("save experiments: %w", err)
		}
	}
	done(len(res.Labeled), len(res.Labeled))

	res.Summary = r.summarize(res, time.Since(start))
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return nil, fmt.Errorf("encode run summary: %w", err)
	}
	if err := r.tracker.MarkCompleted(ctx, runID, string(summary)); err != nil {
		return nil, fmt.Errorf("failed to mark run as completed: %w", err)
	}

	log.Info("pipeline run completed",
		zap.Int("heat_events", res.Summary.HeatEvents),
		zap.Int("clusters", res.Summary.Clusters),
		zap.Int("refugia", res.Summary.RefugiaClusters),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// enter records that a stage has started and returns the callback that
// records its duration and row counts.
func (r *Runner) enter(ctx context.Context, log *zap.Logger, runID, stage string) func(rowsIn, rowsOut int) {
	started := time.Now()
	if err := r.tracker.UpdateProgress(ctx, runID, analysis.NewProgress(stage)); err != nil {
		log.Warn("failed to update run progress", zap.String("stage", stage), zap.Error(err))
	}
	log.Debug("stage started", zap.String("stage", stage))

	return func(rowsIn, rowsOut int) {
		elapsed := time.Since(started)
		r.metrics.ObserveStage(stage, elapsed, rowsIn, rowsOut)
		log.Info("stage finished",
			zap.String("stage", stage),
			zap.Int("rows_in", rowsIn),
			zap.Int("rows_out", rowsOut),
			zap.Duration("elapsed", elapsed))
	}
}

func (r *Runner) persistDetection(ctx context.Context, res *Result) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveThresholds(ctx, res.RunID, res.Thresholds.Rows); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}
	if err := r.store.SaveDetection(ctx, res.RunID, res.Records, res.Events, res.Clusters); err != nil {
		return fmt.Errorf("save detection: %w", err)
	}
	return nil
}

func (r *Runner) experiments(ctx context.Context, res *Result, events behavior.EventParams,
	cluster clustering.ClusterParams, heatPoints []models.TaggedRecord) (experiments.Report, error) {

	deltas := r.cfg.SensitivityDeltas
	if len(deltas) == 0 {
		deltas = experiments.DefaultDeltas
	}

	var report experiments.Report
	var err error
	report.Sensitivity, err = experiments.Sensitivity(ctx, res.Aligned, events, cluster, deltas)
	if err != nil {
		return report, err
	}
	report.HeatwaveResponse, err = experiments.HeatwaveResponse(res.Records, cluster)
	if err != nil {
		return report, err
	}
	report.Consistency = experiments.SpatialConsistency(res.Clusters, res.Records)
	report.ModelComparison = experiments.ModelComparison(heatPoints, experiments.DefaultCoolQuantile)
	report.ScenarioShifts = experiments.CompareScenarios(res.Predictions, r.cfg.ProbabilityThreshold)
	return report, nil
}

// predict scores every future climate table for the species observed in
// the run. It is a no-op without a classifier or future tables.
func (r *Runner) predict(future map[string][]models.ClimateSample, res *Result) (map[string][]models.RefugiaPrediction, error) {
	if r.classifier == nil || len(future) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	for _, rec := range res.Aligned {
		seen[rec.Species] = struct{}{}
	}
	species := make([]string, 0, len(seen))
	for s := range seen {
		species = append(species, s)
	}
	sort.Strings(species)

	out := make(map[string][]models.RefugiaPrediction, len(future))
	for name, table := range future {
		preds, err := model.PredictFuture(foundation.CleanClimate(table), r.classifier, res.FeatureSpec,
			res.Thresholds.Thresholds, species, r.cfg.ProbabilityThreshold)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		out[name] = preds
	}
	return out, nil
}

func countPredictions(predictions map[string][]models.RefugiaPrediction) int {
	n := 0
	for _, p := range predictions {
		n += len(p)
	}
	return n
}

func (r *Runner) summarize(res *Result, elapsed time.Duration) models.RunSummary {
	s := res.Summary
	s.CleanTrajectoryRows = len(res.Trajectory)
	s.CleanClimateRows = len(res.Climate)
	s.AlignedRows = len(res.Aligned)
	s.HeatEvents = len(res.Events)
	s.Clusters = len(res.Clusters)
	s.RefugiaClusters = len(res.Refugia)
	s.LabeledPoints = len(res.Labeled)
	s.PositiveLabels = annotation.CountPositive(res.Labeled)
	s.FuturePredictions = countPredictions(res.Predictions)
	s.ThresholdSource = res.Thresholds.Source
	s.DurationSeconds = elapsed.Seconds()
	return s
}

// IsDataError reports whether err stems from the input data rather than
// from the infrastructure.
func IsDataError(err error) bool {
	return errors.Is(err, analysis.ErrSchema) ||
		errors.Is(err, analysis.ErrQuality) ||
		errors.Is(err, analysis.ErrNoHeatEvents) ||
		errors.Is(err, analysis.ErrNoRefugia) ||
		errors.Is(err, analysis.ErrInvalidParams)
}
