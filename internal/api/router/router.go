package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/beanstalk-bridge/internal/api/handler"
)

// HealthChecker reports whether a backing service is usable.
// *postgresql.Client implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds what the router needs besides the handler dependencies
type Config struct {
	ServiceName string
	// Gatherer serves /metrics; nil leaves the endpoint out
	Gatherer prometheus.Gatherer
	// Database is checked by /health when set
	Database HealthChecker
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(cfg Config, deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if cfg.Database != nil {
			if err := cfg.Database.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": cfg.ServiceName,
					"error":   "database unavailable",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.ServiceName,
		})
	})

	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(deps.Logger.Handler(), slog.LevelError),
		})))
	}

	runHandler := handler.NewRunHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			// GET /api/v1/tasks - List configured tasks
			tasks.GET("", runHandler.ListTasks)

			// POST /api/v1/tasks/:task/runs - Queue a run of the task
			tasks.POST("/:task/runs", runHandler.ScheduleRun)
		}

		runs := v1.Group("/runs")
		{
			// GET /api/v1/runs - List runs with filtering and pagination
			runs.GET("", runHandler.ListRuns)

			// GET /api/v1/runs/:run_id - Get run details
			runs.GET("/:run_id", runHandler.GetRun)
		}
	}

	return r
}
