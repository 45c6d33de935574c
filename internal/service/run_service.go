package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jengzang/refugia-backend-go/internal/config"
	"github.com/jengzang/refugia-backend-go/internal/ingest"
	"github.com/jengzang/refugia-backend-go/internal/logger"
	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/pipeline"
	"github.com/jengzang/refugia-backend-go/internal/repository"
)

// RunService handles pipeline run business logic
type RunService struct {
	runs   *repository.RunRepository
	runner *pipeline.Runner
	cfg    config.PipelineConfig
	logger *zap.Logger

	// Background runs outlive the request that started them
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewRunService creates a new run service. Background runs stop when ctx
// is cancelled.
func NewRunService(ctx context.Context, runs *repository.RunRepository, runner *pipeline.Runner, cfg config.PipelineConfig, log *zap.Logger) *RunService {
	return &RunService{
		runs:    runs,
		runner:  runner,
		cfg:     cfg,
		logger:  logger.Component(log, "run_service"),
		baseCtx: ctx,
	}
}

// Upload holds the raw CSV tables of a new run
type Upload struct {
	Trajectory io.Reader
	Climate    io.Reader
	CreatedBy  string
}

// CreateRun parses the upload, records a pending run and starts the
// pipeline in the background.
func (s *RunService) CreateRun(ctx context.Context, upload Upload) (*models.PipelineRun, error) {
	run, input, err := s.prepare(ctx, upload)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.execute(run.ID, input)

	return run, nil
}

// ExecuteRun parses the upload, records the run and executes the pipeline
// in the caller's goroutine.
func (s *RunService) ExecuteRun(ctx context.Context, upload Upload) (*models.PipelineRun, *pipeline.Result, error) {
	run, input, err := s.prepare(ctx, upload)
	if err != nil {
		return nil, nil, err
	}

	result, runErr := s.runner.Run(ctx, run.ID, input)

	// Reload so the caller sees the terminal status
	stored, err := s.runs.GetByID(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		stored = run
	}
	return stored, result, runErr
}

func (s *RunService) prepare(ctx context.Context, upload Upload) (*models.PipelineRun, pipeline.Input, error) {
	var input pipeline.Input
	var err error

	input.Trajectory, err = ingest.ReadTrajectory(upload.Trajectory, ingest.TrajectoryOptions{
		RequireSpecies:  s.cfg.RequireSpecies,
		SpeciesFallback: s.cfg.SpeciesFallback,
	})
	if err != nil {
		return nil, input, err
	}
	input.Climate, err = ingest.ReadClimate(upload.Climate)
	if err != nil {
		return nil, input, err
	}

	params, err := json.Marshal(s.cfg)
	if err != nil {
		return nil, input, fmt.Errorf("failed to serialize params: %w", err)
	}

	createdBy := upload.CreatedBy
	if createdBy == "" {
		createdBy = "anonymous"
	}

	run := &models.PipelineRun{
		ID:             uuid.NewString(),
		Status:         models.RunStatusPending,
		ParamsJSON:     string(params),
		TrajectoryRows: len(input.Trajectory),
		ClimateRows:    len(input.Climate),
		CreatedBy:      createdBy,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, input, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Info("pipeline run created",
		zap.String("run_id", run.ID),
		zap.String("created_by", createdBy),
		zap.Int("trajectory_rows", run.TrajectoryRows),
		zap.Int("climate_rows", run.ClimateRows))
	return run, input, nil
}

func (s *RunService) execute(runID string, input pipeline.Input) {
	defer s.wg.Done()

	// The runner records failures on the run itself
	if _, err := s.runner.Run(s.baseCtx, runID, input); err != nil {
		level := zap.ErrorLevel
		if pipeline.IsDataError(err) {
			level = zap.WarnLevel
		}
		s.logger.Check(level, "background run ended without results").
			Write(zap.String("run_id", runID), zap.Error(err))
	}
}

// Wait blocks until every background run has returned
func (s *RunService) Wait() {
	s.wg.Wait()
}

// GetRun retrieves a run by ID
func (s *RunService) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	return s.runs.GetByID(ctx, id)
}

// ListRuns retrieves a page of runs, newest first
func (s *RunService) ListRuns(ctx context.Context, status string, page, pageSize int) (*models.PageResponse, error) {
	f := models.ResultFilter{Page: page, PageSize: pageSize}
	f.Normalize()

	runs, err := s.runs.List(ctx, status, f.PageSize, f.Offset())
	if err != nil {
		return nil, err
	}
	total, err := s.runs.Count(ctx, status)
	if err != nil {
		return nil, err
	}
	return models.NewPageResponse(runs, total, f), nil
}
