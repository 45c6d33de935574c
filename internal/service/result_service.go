package service

import (
	"context"
	"encoding/json"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/repository"
)

// ResultService serves the artifacts of pipeline runs
type ResultService struct {
	runs    *repository.RunRepository
	results *repository.ResultRepository
}

// NewResultService creates a new result service
func NewResultService(runs *repository.RunRepository, results *repository.ResultRepository) *ResultService {
	return &ResultService{runs: runs, results: results}
}

// Every listing first checks that the run exists, so an unknown run is
// ErrNotFound rather than an empty page.
func (s *ResultService) ensureRun(ctx context.Context, id string) error {
	_, err := s.runs.GetByID(ctx, id)
	return err
}

// ListRecords lists the tagged records of a run
func (s *ResultService) ListRecords(ctx context.Context, f models.ResultFilter) (*models.PageResponse, error) {
	if err := s.ensureRun(ctx, f.RunID); err != nil {
		return nil, err
	}
	f.Normalize()
	data, total, err := s.results.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	return models.NewPageResponse(data, total, f), nil
}

// ListEvents lists the heat events of a run
func (s *ResultService) ListEvents(ctx context.Context, f models.ResultFilter) (*models.PageResponse, error) {
	if err := s.ensureRun(ctx, f.RunID); err != nil {
		return nil, err
	}
	f.Normalize()
	data, total, err := s.results.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	return models.NewPageResponse(data, total, f), nil
}

// ListClusters lists the clusters of a run, optionally refugia only
func (s *ResultService) ListClusters(ctx context.Context, f models.ResultFilter) (*models.PageResponse, error) {
	if err := s.ensureRun(ctx, f.RunID); err != nil {
		return nil, err
	}
	f.Normalize()
	data, total, err := s.results.ListClusters(ctx, f)
	if err != nil {
		return nil, err
	}
	return models.NewPageResponse(data, total, f), nil
}

// ListLabeledPoints lists the labeled training points of a run
func (s *ResultService) ListLabeledPoints(ctx context.Context, f models.ResultFilter) (*models.PageResponse, error) {
	if err := s.ensureRun(ctx, f.RunID); err != nil {
		return nil, err
	}
	f.Normalize()
	data, total, err := s.results.ListLabeledPoints(ctx, f)
	if err != nil {
		return nil, err
	}
	return models.NewPageResponse(data, total, f), nil
}

// ListThresholds lists the heat thresholds applied in a run
func (s *ResultService) ListThresholds(ctx context.Context, runID string) ([]models.SpeciesThreshold, error) {
	if err := s.ensureRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.results.ListThresholds(ctx, runID)
}

// GetExperiments returns the experiment report of a run
func (s *ResultService) GetExperiments(ctx context.Context, runID string) (json.RawMessage, error) {
	if err := s.ensureRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.results.GetExperiments(ctx, runID)
}
