package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jengzang/refugia-backend-go/internal/config"
	"github.com/jengzang/refugia-backend-go/internal/handler"
	"github.com/jengzang/refugia-backend-go/internal/middleware"
	"github.com/jengzang/refugia-backend-go/internal/service"
)

// Upload requests admitted per client per window
const (
	uploadLimit  = 10
	uploadWindow = time.Minute
)

// Deps holds the collaborators of the HTTP API
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer
	Runs     *service.RunService
	Results  *service.ResultService
}

// SetupRouter builds the gin engine serving the refugia API
func SetupRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logger))
	r.MaxMultipartMemory = d.Config.MaxMemory

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Refugia Backend API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	runHandler := handler.NewRunHandler(d.Runs)
	resultHandler := handler.NewResultHandler(d.Results)

	api := r.Group("/api/v1")
	{
		runs := api.Group("/runs")
		{
			runs.POST("",
				middleware.Auth(d.Config.JWTSecret),
				middleware.RateLimit(middleware.NewRateLimiter(uploadLimit, uploadWindow)),
				runHandler.CreateRun)
			runs.GET("", runHandler.ListRuns)
			runs.GET("/:id", runHandler.GetRun)

			// Artifacts
			runs.GET("/:id/records", resultHandler.ListRecords)
			runs.GET("/:id/events", resultHandler.ListEvents)
			runs.GET("/:id/clusters", resultHandler.ListClusters)
			runs.GET("/:id/labeled-points", resultHandler.ListLabeledPoints)
			runs.GET("/:id/thresholds", resultHandler.ListThresholds)
			runs.GET("/:id/experiments", resultHandler.GetExperiments)
		}
	}

	return r
}
