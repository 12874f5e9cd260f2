package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/lumberjack/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	rl := NewRequestLogger(logging.NewWriterLogger("http", &buf, logging.TRACE))

	r := gin.New()
	r.Use(rl.Handler())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = TraceID(c)
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Trace-Id"))
	assert.Contains(t, buf.String(), "GET /ping 200")
	assert.Contains(t, buf.String(), seen)
}

func TestPrometheusMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm, err := NewPrometheusMiddleware("test", reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(pm.Handler())
	RegisterMetricsEndpoint(r, reg)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/api/players/:authority", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ok", "/fail", "/fail", "/nowhere", "/api/players/aa", "/api/players/bb"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(pm.requests.WithLabelValues("GET", "/ok", "2xx")))
	assert.Equal(t, float64(2), testutil.ToFloat64(pm.requests.WithLabelValues("GET", "/fail", "4xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pm.requests.WithLabelValues("GET", "unmatched", "4xx")))
	assert.Equal(t, float64(2), testutil.ToFloat64(pm.requests.WithLabelValues("GET", "/api/players/:authority", "2xx")),
		"Маршрут с параметром считается одной серией")
	assert.Zero(t, testutil.ToFloat64(pm.inflight))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_http_request_duration_seconds"))
	assert.True(t, strings.Contains(w.Body.String(), "test_http_response_size_bytes"))
	assert.False(t, strings.Contains(w.Body.String(), `route="/metrics"`), "Скрейпы не учитываются")

	_, err = NewPrometheusMiddleware("test", reg)
	assert.Error(t, err, "Повторная регистрация в том же реестре")
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "5xx", statusClass(503))
}
