package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/ticketstack/interfaces"
	"github.com/customeros/ticketstack/internal/tracing"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the monitor mode, failure count and last drain summary.
func Status(monitor interfaces.MonitorStatusProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, _ := opentracing.StartSpanFromContext(c.Request.Context(), "Handlers.Status")
		defer span.Finish()
		tracing.TagComponentRest(span)

		status := monitor.Status()
		span.SetTag("monitor.mode", status.Mode.String())
		c.JSON(http.StatusOK, status)
	}
}

// Metrics exposes the worker registry in the prometheus text format.
func Metrics(registry *prometheus.Registry) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
