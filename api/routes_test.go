package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketstack/dto"
	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/internal/metrics"
)

type staticStatus struct {
	status dto.MonitorStatus
}

func (s staticStatus) Status() dto.MonitorStatus {
	return s.status
}

func newRouter(t *testing.T) (*gin.Engine, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m := metrics.NewMetrics()
	RegisterRoutes(r, staticStatus{status: dto.MonitorStatus{
		Mode:     enum.MonitorPolling,
		Failures: 5,
		Running:  true,
		LastDrain: &dto.DrainResult{
			DrainID:   "d-1",
			StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Found:     3,
			Processed: 2,
			Skipped:   1,
		},
	}}, m, "secret")
	return r, m
}

func TestHealth(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus_RequiresAPIKey(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatus(t *testing.T) {
	r, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set(APIKeyHeader, "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body dto.MonitorStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, enum.MonitorPolling, body.Mode)
	assert.Equal(t, 5, body.Failures)
	require.NotNil(t, body.LastDrain)
	assert.Equal(t, "d-1", body.LastDrain.DrainID)
	assert.Equal(t, 2, body.LastDrain.Processed)
}

func TestMetrics(t *testing.T) {
	r, m := newRouter(t)
	m.TicketsCreated.Add(4)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ticketstack_tickets_created_total 4")
}
