package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/ticketstack/api/middleware"
	"github.com/customeros/ticketstack/api/rest/handlers"
	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/metrics"
	"github.com/customeros/ticketstack/internal/tracing"
)

const APIKeyHeader = "X-TICKETSTACK-API-KEY"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, monitor interfaces.MonitorStatusProvider, m *metrics.Metrics, apikey string) {
	if monitor == nil {
		panic("Monitor cannot be nil")
	}
	if m == nil {
		panic("Metrics cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", handlers.Metrics(m.Registry))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware())
	{
		api.GET("/status", handlers.Status(monitor))
	}
}
