package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/cases/models"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/metrics"
	"kycflow/pkg/platform/middleware/metadata"
)

func TestBuildRegistry(t *testing.T) {
	t.Run("local agents cover the stages without endpoints", func(t *testing.T) {
		reg, err := buildRegistry(config.AgentsConfig{}, discardLogger())
		require.NoError(t, err)
		assert.ElementsMatch(t, []models.AgentType{
			models.AgentRiskAnalysis,
			models.AgentSanctionScreening,
			models.AgentComplianceCheck,
		}, reg.Types())
		_, ok := reg.Get(models.AgentDocumentValidation)
		assert.False(t, ok)
	})

	t.Run("endpoints replace local agents", func(t *testing.T) {
		reg, err := buildRegistry(config.AgentsConfig{Endpoints: []config.AgentEndpoint{
			{Type: "risk_analysis", ID: "risk-remote", URL: "http://risk.invalid/invoke"},
			{Type: "document_validation", ID: "validator", URL: "http://validator.invalid/invoke"},
		}}, discardLogger())
		require.NoError(t, err)
		a, ok := reg.Get(models.AgentRiskAnalysis)
		require.True(t, ok)
		assert.Equal(t, "risk-remote", a.ID())
		_, ok = reg.Get(models.AgentDocumentValidation)
		assert.True(t, ok)
	})

	t.Run("decision synthesis cannot be delegated", func(t *testing.T) {
		_, err := buildRegistry(config.AgentsConfig{Endpoints: []config.AgentEndpoint{
			{Type: "decision_synthesis", ID: "x", URL: "http://x.invalid"},
		}}, discardLogger())
		require.Error(t, err)
	})

	t.Run("missing watchlist file fails startup", func(t *testing.T) {
		_, err := buildRegistry(config.AgentsConfig{WatchlistFile: t.TempDir() + "/missing.yaml"}, discardLogger())
		require.Error(t, err)
	})
}

func TestScreeningLevels(t *testing.T) {
	levels, err := screeningLevels([]string{"medium", "high"})
	require.NoError(t, err)
	assert.Equal(t, []models.RiskLevel{models.RiskMedium, models.RiskHigh}, levels)

	_, err = screeningLevels([]string{"extreme"})
	require.Error(t, err)
}

func TestHealthHandler(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	t.Run("all dependencies up", func(t *testing.T) {
		rr := httptest.NewRecorder()
		healthHandler(m, map[string]func(context.Context) error{
			"postgres": func(context.Context) error { return nil },
		}, func() map[models.AgentType]string {
			return map[models.AgentType]string{models.AgentRiskAnalysis: "open"}
		})(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var body healthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "up", body.Dependencies["postgres"])
		assert.Equal(t, "open", body.Breakers[models.AgentRiskAnalysis])
	})

	t.Run("a failing dependency degrades the service", func(t *testing.T) {
		rr := httptest.NewRecorder()
		healthHandler(m, map[string]func(context.Context) error{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}, nil)(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		var body healthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "down", body.Dependencies["redis"])
	})
}

func TestRouter_StaffRoutesRequireToken(t *testing.T) {
	cfg := config.Server{Auth: config.AuthConfig{JWTSigningKey: "k", Issuer: "i", Audience: "a"}}
	m := metrics.New(prometheus.NewRegistry())
	r := newRouter(cfg, discardLogger(), nil, healthHandler(m, nil, nil), m)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(metadata.RequestIDHeader))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
