package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/metrics"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	prev := logger.Get()
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(prev) })
	return logs
}

func TestSetupMiddleware(t *testing.T) {
	e := echo.New()

	SetupMiddleware(e)

	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "test")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Body.String())

	// リクエストIDはUUID
	_, err := uuid.Parse(rec.Header().Get(echo.HeaderXRequestID))
	assert.NoError(t, err)
}

func TestSetupMiddleware_KeepsExistingRequestID(t *testing.T) {
	e := echo.New()
	SetupMiddleware(e)
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(echo.HeaderXRequestID, "existing-request-id")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "existing-request-id", rec.Header().Get(echo.HeaderXRequestID))
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name           string
		handler        echo.HandlerFunc
		expectedStatus int
		expectedLevel  string
		expectedMsg    string
	}{
		{
			name:           "正常",
			handler:        func(c echo.Context) error { return c.String(http.StatusOK, "success") },
			expectedStatus: http.StatusOK,
			expectedLevel:  "info",
			expectedMsg:    "request completed",
		},
		{
			name:           "クライアントエラー",
			handler:        func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "conflict") },
			expectedStatus: http.StatusConflict,
			expectedLevel:  "warn",
			expectedMsg:    "client error",
		},
		{
			name:           "サーバーエラー",
			handler:        func(c echo.Context) error { return c.String(http.StatusInternalServerError, "internal error") },
			expectedStatus: http.StatusInternalServerError,
			expectedLevel:  "error",
			expectedMsg:    "server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observeLogs(t)
			e := echo.New()
			e.Use(RequestLogger())
			e.GET("/events/:id", tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/events/evt-1", nil)
			req.Header.Set(headerUserID, "user-1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			entries := logs.FilterMessage(tt.expectedMsg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.expectedLevel, entries[0].Level.String())

			fields := entries[0].ContextMap()
			assert.Equal(t, "/events/:id", fields["route"])
			assert.Equal(t, "user-1", fields["user_id"])
			assert.Equal(t, int64(tt.expectedStatus), fields["status"])
		})
	}
}

func TestPrometheusMiddleware(t *testing.T) {
	e := echo.New()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	e.Use(PrometheusMiddleware(m))

	e.GET("/events/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/error", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad request")
	})

	for _, path := range []string{"/events/a", "/events/b", "/error"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	// パスパラメータはルートのパターンに集約される
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/events/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/error", "400")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequestDuration))
}
