package handler

import (
	"errors"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/refugia-backend-go/internal/middleware"
	"github.com/jengzang/refugia-backend-go/internal/pipeline"
	"github.com/jengzang/refugia-backend-go/internal/repository"
	"github.com/jengzang/refugia-backend-go/internal/service"
	"github.com/jengzang/refugia-backend-go/pkg/response"
)

// RunHandler handles HTTP requests for pipeline runs
type RunHandler struct {
	service *service.RunService
}

// NewRunHandler creates a new run handler
func NewRunHandler(service *service.RunService) *RunHandler {
	return &RunHandler{service: service}
}

// CreateRun starts a pipeline run over uploaded trajectory and climate CSVs
// POST /api/v1/runs
func (h *RunHandler) CreateRun(c *gin.Context) {
	trajectory, err := openPart(c, "trajectory")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer trajectory.Close()

	climate, err := openPart(c, "climate")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer climate.Close()

	run, err := h.service.CreateRun(c.Request.Context(), service.Upload{
		Trajectory: trajectory,
		Climate:    climate,
		CreatedBy:  c.GetString(middleware.UserKey),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Accepted(c, run)
}

// GetRun retrieves a run by ID
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, run)
}

// ListRuns retrieves runs, newest first
// GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil {
		pageSize = 20
	}

	runs, err := h.service.ListRuns(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, runs)
}

func openPart(c *gin.Context, name string) (multipart.File, error) {
	header, err := c.FormFile(name)
	if err != nil {
		return nil, errors.New("missing " + name + " file")
	}
	return header.Open()
}

// respondError maps service errors to HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case pipeline.IsDataError(err):
		response.BadRequest(c, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c, "internal server error")
	}
}
