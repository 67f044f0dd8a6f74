package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iskralabs/calibra/internal/api/handlers"
	"github.com/iskralabs/calibra/internal/database"
	"github.com/iskralabs/calibra/internal/engine"
	"github.com/iskralabs/calibra/internal/logging"
)

// SetupRoutes configures all the HTTP routes for the application.
//
// Parameters:
//
//	router: The Gin engine instance to register routes on.
//	eng: The calibration engine.
//	store: Snapshot store, may be nil when persistence is disabled.
//	db: Postgres connection, may be nil.
//	redis: Redis connection, may be nil.
//	registry: Prometheus registry backing the /metrics endpoint.
//	logger: Logger instance.
func SetupRoutes(
	router *gin.Engine,
	eng *engine.Engine,
	store *database.SnapshotStore,
	db *database.PostgresDB,
	redis *database.RedisClient,
	registry *prometheus.Registry,
	logger logging.Logger,
) {
	var dbChecker handlers.DatabaseHealthChecker
	if db != nil {
		dbChecker = db
	}
	var redisChecker handlers.RedisHealthChecker
	if redis != nil {
		redisChecker = redis
	}

	healthHandler := handlers.NewHealthHandler(dbChecker, redisChecker)
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	calibrationHandler := handlers.NewCalibrationHandler(eng, store, logger)

	v1 := router.Group("/api/v1")
	{
		cal := v1.Group("/calibration")
		{
			cal.POST("/readings", calibrationHandler.SubmitReadings)
			cal.POST("/readings/single", calibrationHandler.SubmitSingleReading)
			cal.GET("/state", calibrationHandler.GetState)
			cal.GET("/correlation", calibrationHandler.GetCorrelation)
			cal.GET("/profiles", calibrationHandler.GetProfiles)
			cal.POST("/profile", calibrationHandler.SetProfile)
			cal.GET("/thresholds", calibrationHandler.GetThresholds)
			cal.GET("/thresholds/changes", calibrationHandler.GetThresholdChanges)
			cal.POST("/thresholds/reset", calibrationHandler.ResetThresholds)
			cal.POST("/snapshot", calibrationHandler.SaveSnapshot)
			cal.POST("/restore", calibrationHandler.RestoreSnapshot)
		}
	}
}
