package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"foreman/internal/app"
)

type routerConfig struct {
	logger   *slog.Logger
	clock    app.Clock
	metadata Metadata
	health   func(ctx context.Context) error
}

type RouterOption func(*routerConfig)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(c *routerConfig) { c.logger = logger }
}

func WithClock(clock app.Clock) RouterOption {
	return func(c *routerConfig) { c.clock = clock }
}

func WithMetadata(meta Metadata) RouterOption {
	return func(c *routerConfig) { c.metadata = meta }
}

// WithHealthCheck makes /healthz report 503 while check fails.
func WithHealthCheck(check func(ctx context.Context) error) RouterOption {
	return func(c *routerConfig) { c.health = check }
}

// NewRouter wires every endpoint of the dispatch API.
func NewRouter(dispatch app.DispatchService, opts ...RouterOption) *gin.Engine {
	cfg := routerConfig{
		logger:   slog.Default(),
		clock:    app.SystemClock,
		metadata: Metadata{Name: "foreman", Version: "dev"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	// Handlers pass *gin.Context down as context.Context; let it carry the
	// request's cancellation.
	router.ContextWithFallback = true
	router.Use(gin.Recovery(), RequestLogger(cfg.logger))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"meta": cfg.metadata})
	})
	router.GET("/healthz", func(c *gin.Context) {
		if cfg.health != nil {
			if err := cfg.health(c); err != nil {
				cfg.logger.Warn("health check failed", slog.Any("error", err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.metadata.Name,
		})
	})

	services := NewServiceHandler(dispatch, cfg.clock, cfg.logger)
	jobs := NewJobHandler(dispatch, cfg.logger)
	jobSets := NewJobSetHandler(dispatch, cfg.logger)

	v1 := router.Group(apiPrefix)
	{
		v1.GET("/services", services.ListServices)
		v1.POST("/services", services.RegisterService)
		v1.GET("/services/:service_id", services.GetService)
		v1.PATCH("/services/:service_id", services.Heartbeat)
		v1.DELETE("/services/:service_id", services.DeleteService)

		v1.GET("/services/:service_id/jobs", jobs.ListJobs)
		v1.POST("/services/:service_id/jobs", jobs.SubmitJob)
		v1.GET("/services/:service_id/queue", jobs.QueueHead)
		v1.POST("/services/:service_id/queue", jobs.ClaimNext)

		v1.GET("/jobs/:job_id", jobs.GetJob)
		v1.PATCH("/jobs/:job_id", jobs.UpdateJob)
		v1.GET("/jobs/:job_id/next", jobs.NextJob)

		v1.POST("/job_sets", jobSets.CreateJobSet)
		v1.GET("/job_sets/:job_set_id", jobSets.GetJobSet)
	}

	return router
}
