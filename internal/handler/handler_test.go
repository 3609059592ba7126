package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"invoice-api/internal/config"
	"invoice-api/internal/container"
	"invoice-api/pkg/logger"

	"github.com/stretchr/testify/require"
)

func newTestContainer(t *testing.T) *container.Container {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		JWTSecret:   "test-secret",
		Metrics: config.MetricsConfig{
			SlowRequestMs: 1000,
			SlowQueryMs:   500,
			MaxErrors:     10,
		},
		Threat: config.ThreatConfig{
			RepeatThreshold: 5,
			Patterns:        config.DefaultThreatPatterns(),
		},
	}

	c, err := container.New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
