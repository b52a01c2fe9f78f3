package gin_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	infragin "github.com/jonesrussell/north-cloud/resource-cache/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/resource-cache/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(setup func(*gin.Engine), checks map[string]infragin.HealthChecker) *gin.Engine {
	b := infragin.NewServerBuilder("resource-cache", 8080).WithLogger(logger.NewNop()).WithRoutes(setup)
	for name, check := range checks {
		b = b.WithHealthCheck(name, check)
	}
	return b.Build().Router()
}

func TestRequestIDLoggerMiddleware_GeneratesAndEchoesID(t *testing.T) {
	var fromCtx logger.Logger
	router := newTestServer(func(r *gin.Engine) {
		r.GET("/ping", func(c *gin.Context) {
			fromCtx = logger.FromContext(c.Request.Context())
			c.String(http.StatusOK, "pong")
		})
	}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(infragin.RequestIDHeader))
	assert.NotNil(t, fromCtx)

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set(infragin.RequestIDHeader, "given-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "given-id", w.Header().Get(infragin.RequestIDHeader))
}

func TestRecoveryMiddleware_Returns500(t *testing.T) {
	router := newTestServer(func(r *gin.Engine) {
		r.GET("/boom", func(*gin.Context) { panic("boom") })
	}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestHealth_DegradedRedisStays200(t *testing.T) {
	router := newTestServer(nil, map[string]infragin.HealthChecker{
		"redis": infragin.RedisHealthChecker(func() error { return errors.New("down") }),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)

	var resp infragin.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, infragin.HealthStatusDegraded, resp.Status)
	assert.Equal(t, "resource-cache", resp.Service)
	assert.Equal(t, infragin.HealthStatusDegraded, resp.Checks["redis"].Status)
}

func TestHealth_UnhealthyCheckReturns503(t *testing.T) {
	router := newTestServer(nil, map[string]infragin.HealthChecker{
		"storage": func() infragin.CheckResult {
			return infragin.CheckResult{Status: infragin.HealthStatusUnhealthy}
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
