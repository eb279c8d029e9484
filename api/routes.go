package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/h2linker/sendqueue/api/handlers"
	"github.com/h2linker/sendqueue/api/middleware"
	"github.com/h2linker/sendqueue/config"
	"github.com/h2linker/sendqueue/internal/enum"
	"github.com/h2linker/sendqueue/internal/repository"
	"github.com/h2linker/sendqueue/internal/tracing"
	"github.com/h2linker/sendqueue/services"
)

const (
	APIKeyHeader    = "X-SENDQUEUE-API-KEY"
	CronTokenHeader = "X-Cron-Token"
	appSource       = "sendqueue"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, cfg *config.Config) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	apiHandlers := handlers.InitHandlers(s, cfg.DrainConfig)

	// Health check and metrics (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", handlers.Metrics(s.Registry))

	// Scheduler trigger, authenticated with the cron token
	cron := r.Group("/v1/queue")
	cron.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  CronTokenHeader,
		ValidAPIKey: cfg.AppConfig.CronToken,
		AllowBearer: true,
	}))
	cron.Use(middleware.CustomContextMiddleware(appSource))
	cron.Use(middleware.TracingMiddleware())
	{
		cron.POST("/process", apiHandlers.Queue.ProcessCron())
	}

	api := r.Group("/v1")
	api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: cfg.AppConfig.APIKey,
	}))
	api.Use(middleware.UserIdMiddleware(true))
	api.Use(middleware.CustomContextMiddleware(appSource))
	api.Use(middleware.TracingMiddleware())
	{
		me := api.Group("/users/me")
		{
			me.POST("/queue", apiHandlers.Queue.Enqueue())
			me.POST("/queue/process", apiHandlers.Queue.ProcessForUser())
			me.POST("/queue/:id/retry", apiHandlers.Queue.Retry())
			me.GET("/queue/:id/history", apiHandlers.Queue.History())
			me.GET("/warmup", apiHandlers.Warmup.Status())
			me.PUT("/smtp", apiHandlers.Warmup.SaveSmtp())
			me.POST("/radar/scan", apiHandlers.Radar.ScanUser())
		}

		api.GET("/dns/check", apiHandlers.DNS.Check())

		admin := api.Group("/admin")
		admin.Use(middleware.RoleMiddleware(repos.ProfileRepository, enum.UserRoleAdmin))
		{
			admin.POST("/radar/scan", apiHandlers.Admin.ScanAllRadars())
			admin.POST("/warmup/escalate", apiHandlers.Admin.EscalateWarmups())
			admin.POST("/credits/reset", apiHandlers.Admin.ResetCredits())
		}
	}
}
