package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMiddleware считает HTTP-запросы по маршрутам gin.
//
// Метрики (namespace = service):
//
//	http_requests_total{method,route,class}    class: 2xx, 4xx, 5xx
//	http_request_duration_seconds{method,route}
//	http_response_size_bytes{route}
//	http_requests_inflight
//
// Запросы к путям из skip (по умолчанию /metrics и /health) не учитываются.
type PrometheusMiddleware struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inflight prometheus.Gauge
	skip     map[string]struct{}
}

// NewPrometheusMiddleware регистрирует метрики в reg.
// Повторная регистрация того же service в том же реестре возвращает ошибку.
func NewPrometheusMiddleware(service string, reg prometheus.Registerer, skip ...string) (*PrometheusMiddleware, error) {
	if len(skip) == 0 {
		skip = []string{"/metrics", "/health"}
	}
	pm := &PrometheusMiddleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_requests_total",
			Help:      "HTTP-запросы по маршруту и классу ответа.",
		}, []string{"method", "route", "class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность HTTP-запросов.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_response_size_bytes",
			Help:      "Размер тела ответа.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 7), // 64 B .. 256 KiB, снимок мира около 4 KiB
		}, []string{"route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Запросы в обработке.",
		}),
		skip: make(map[string]struct{}, len(skip)),
	}
	for _, p := range skip {
		pm.skip[p] = struct{}{}
	}

	for _, c := range []prometheus.Collector{pm.requests, pm.duration, pm.size, pm.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := pm.skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		pm.inflight.Inc()
		defer pm.inflight.Dec()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched" // произвольные URL не раздувают кардинальность
		}
		method := c.Request.Method

		pm.requests.WithLabelValues(method, route, statusClass(c.Writer.Status())).Inc()
		pm.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n > 0 {
			pm.size.WithLabelValues(route).Observe(float64(n))
		}
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// RegisterMetricsEndpoint добавляет GET /metrics, отдающий метрики из g.
func RegisterMetricsEndpoint(r gin.IRouter, g prometheus.Gatherer) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
