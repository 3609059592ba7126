package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"invoice-api/internal/domain"
	"invoice-api/pkg/database"
	"invoice-api/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type detailedHealth struct {
	Status  string                            `json:"status"`
	Service string                            `json:"service"`
	Version string                            `json:"version"`
	Checks  map[string]map[string]interface{} `json:"checks"`
	Metrics *domain.MetricsStats              `json:"metrics"`
}

func getHealth(t *testing.T, h *HealthHandler, target string) (*httptest.ResponseRecorder, detailedHealth) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body detailedHealth
	decodeBody(t, rec, &body)
	return rec, body
}

func TestHealthHandler_Basic(t *testing.T) {
	h := NewHealthHandler(newTestContainer(t))

	rec, body := getHealth(t, h, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, domain.StatusHealthy, body.Status)
	assert.Equal(t, ServiceName, body.Service)
	assert.Equal(t, Version, body.Version)
	assert.Empty(t, body.Checks)
	assert.Nil(t, body.Metrics)
}

func TestHealthHandler_DetailedHealthy(t *testing.T) {
	h := NewHealthHandler(newTestContainer(t))

	rec, body := getHealth(t, h, "/health?detailed=true")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusHealthy, body.Status)
	require.NotNil(t, body.Metrics)
	for _, name := range []string{"governance.metrics", "governance.threats", "governance.cache", "governance.ratelimit"} {
		assert.Contains(t, body.Checks, name)
	}
	assert.Equal(t, "disabled", body.Checks["governance.cache"]["status"])
	assert.NotContains(t, body.Checks, "redis", "unconfigured dependencies are not reported")
	assert.NotContains(t, body.Checks, "database")
}

func TestHealthHandler_DegradedOnSlowRequests(t *testing.T) {
	c := newTestContainer(t)
	c.Services.Metrics.RecordRequest(domain.RequestSample{
		Timestamp:  c.Clock.Now(),
		Method:     http.MethodGet,
		Path:       "/api/invoices",
		StatusCode: http.StatusOK,
		DurationMs: 5000,
	})

	rec, body := getHealth(t, NewHealthHandler(c), "/health?detailed=true")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusDegraded, body.Status)
	assert.Equal(t, domain.StatusPerformanceIssues, body.Checks["governance.metrics"]["status"])
}

func TestHealthHandler_DegradedOnElevatedThreats(t *testing.T) {
	c := newTestContainer(t)
	for i := 0; i < 5; i++ {
		c.Services.Threats.Inspect(domain.InspectRequest{
			Identifier: "ip:203.0.113.9",
			Method:     http.MethodGet,
			URL:        "/api/invoices?q=<script>alert(1)</script>",
		})
	}

	_, body := getHealth(t, NewHealthHandler(c), "/health?detailed=true")

	assert.Equal(t, domain.StatusDegraded, body.Status)
	assert.Equal(t, domain.StatusElevated, body.Checks["governance.threats"]["status"])
}

func TestHealthHandler_RedisChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := newTestContainer(t)
	c.RedisClient = client
	h := NewHealthHandler(c)

	rec, body := getHealth(t, h, "/health?detailed=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusHealthy, body.Checks["redis"]["status"])

	mr.Close()

	rec, body = getHealth(t, h, "/health?detailed=true")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.StatusUnhealthy, body.Status)
	assert.Equal(t, domain.StatusUnhealthy, body.Checks["redis"]["status"])
	assert.NotEmpty(t, body.Checks["redis"]["error"])
}

func TestHealthHandler_DatabaseUnavailable(t *testing.T) {
	c := newTestContainer(t)
	c.DB = &database.PostgresDB{}

	start := time.Now()
	rec, body := getHealth(t, NewHealthHandler(c), "/health?detailed=true")

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.StatusUnhealthy, body.Status)
	assert.Equal(t, domain.StatusUnhealthy, body.Checks["database"]["status"])
}
