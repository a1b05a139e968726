package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newHealthRouter(checks HealthChecks) *chi.Mux {
	router := chi.NewRouter()
	NewHealthHandler(checks, "test").RegisterRoutes(router)
	return router
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("healthy", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		newHealthRouter(HealthChecks{"store": ok, "redis": ok}).
			ServeHTTP(recorder, httptest.NewRequest(stdhttp.MethodGet, "/health/ready", nil))

		require.Equal(t, stdhttp.StatusOK, recorder.Code)
		body := decodeBody[HealthResponse](t, recorder)
		assert.Equal(t, "healthy", body.Status)
		assert.Len(t, body.Checks, 2)
	})

	t.Run("dependency down", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		newHealthRouter(HealthChecks{"store": ok, "redis": down}).
			ServeHTTP(recorder, httptest.NewRequest(stdhttp.MethodGet, "/health/ready", nil))

		require.Equal(t, stdhttp.StatusServiceUnavailable, recorder.Code)
		body := decodeBody[HealthResponse](t, recorder)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Checks["redis"].Message)
		assert.Equal(t, "healthy", body.Checks["store"].Status)
	})
}

func TestHealthHandler_LivenessIgnoresDependencies(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	recorder := httptest.NewRecorder()
	newHealthRouter(HealthChecks{"store": down}).
		ServeHTTP(recorder, httptest.NewRequest(stdhttp.MethodGet, "/health/live", nil))

	assert.Equal(t, stdhttp.StatusOK, recorder.Code)
}

func TestHealthHandler_DetailedDegraded(t *testing.T) {
	recorder := httptest.NewRecorder()
	newHealthRouter(HealthChecks{"store": nil}).
		ServeHTTP(recorder, httptest.NewRequest(stdhttp.MethodGet, "/health", nil))

	require.Equal(t, stdhttp.StatusServiceUnavailable, recorder.Code)
	body := decodeBody[HealthResponse](t, recorder)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "Not configured", body.Checks["store"].Message)
}
