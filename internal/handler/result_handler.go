package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/refugia-backend-go/internal/models"
	"github.com/jengzang/refugia-backend-go/internal/service"
	"github.com/jengzang/refugia-backend-go/pkg/response"
)

// ResultHandler handles HTTP requests for run artifacts
type ResultHandler struct {
	service *service.ResultService
}

// NewResultHandler creates a new result handler
func NewResultHandler(service *service.ResultService) *ResultHandler {
	return &ResultHandler{service: service}
}

type listFunc func(context.Context, models.ResultFilter) (*models.PageResponse, error)

func (h *ResultHandler) list(c *gin.Context, fn listFunc) {
	var filter models.ResultFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "invalid query parameters")
		return
	}
	filter.RunID = c.Param("id")

	page, err := fn(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, page)
}

// ListRecords lists the tagged records of a run; refugia=true keeps heat-event records
// GET /api/v1/runs/:id/records
func (h *ResultHandler) ListRecords(c *gin.Context) {
	h.list(c, h.service.ListRecords)
}

// ListEvents lists the heat events of a run
// GET /api/v1/runs/:id/events
func (h *ResultHandler) ListEvents(c *gin.Context) {
	h.list(c, h.service.ListEvents)
}

// ListClusters lists the clusters of a run; refugia=true keeps refugia only
// GET /api/v1/runs/:id/clusters
func (h *ResultHandler) ListClusters(c *gin.Context) {
	h.list(c, h.service.ListClusters)
}

// ListLabeledPoints lists the labeled points of a run; refugia=true keeps positives
// GET /api/v1/runs/:id/labeled-points
func (h *ResultHandler) ListLabeledPoints(c *gin.Context) {
	h.list(c, h.service.ListLabeledPoints)
}

// ListThresholds lists the heat thresholds applied in a run
// GET /api/v1/runs/:id/thresholds
func (h *ResultHandler) ListThresholds(c *gin.Context) {
	thresholds, err := h.service.ListThresholds(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, thresholds)
}

// GetExperiments returns the experiment report of a run
// GET /api/v1/runs/:id/experiments
func (h *ResultHandler) GetExperiments(c *gin.Context) {
	report, err := h.service.GetExperiments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, report)
}
