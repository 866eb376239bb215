package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func serve(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	e := echo.New()
	c := NewChecker("test")
	c.RegisterRoutes(e)

	t.Run("no dependencies", func(t *testing.T) {
		rec := serve(e, "/api/v1/health")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing dependency", func(t *testing.T) {
		c.AddCheck("database", pingFunc(func(context.Context) error { return errors.New("connection refused") }))

		rec := serve(e, "/api/v1/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "unhealthy", status.Checks["database"].Status)
		assert.Equal(t, "test", status.Version)
	})
}

func TestLiveAndReady(t *testing.T) {
	e := echo.New()
	c := NewChecker("test")
	c.RegisterRoutes(e)

	assert.Equal(t, http.StatusOK, serve(e, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(e, "/api/v1/health/ready").Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(e, "/api/v1/health/ready").Code)
}
