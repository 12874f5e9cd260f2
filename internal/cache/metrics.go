package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsRecorder - общий учёт попаданий и задержек для реализаций CacheRepo.
type metricsRecorder struct {
	totalRequests int64
	hits          int64
	misses        int64

	latencySum   int64 // в наносекундах
	latencyCount int64
	maxLatency   int64

	mu         sync.Mutex
	lastUpdate time.Time
}

func (m *metricsRecorder) hit() {
	atomic.AddInt64(&m.totalRequests, 1)
	atomic.AddInt64(&m.hits, 1)
}

func (m *metricsRecorder) miss() {
	atomic.AddInt64(&m.totalRequests, 1)
	atomic.AddInt64(&m.misses, 1)
}

// recordLatency записывает latency метрику.
func (m *metricsRecorder) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()

	atomic.AddInt64(&m.latencySum, latency)
	atomic.AddInt64(&m.latencyCount, 1)

	for {
		current := atomic.LoadInt64(&m.maxLatency)
		if latency <= current || atomic.CompareAndSwapInt64(&m.maxLatency, current, latency) {
			break
		}
	}

	m.mu.Lock()
	m.lastUpdate = time.Now()
	m.mu.Unlock()
}

func (m *metricsRecorder) snapshot() *CacheMetrics {
	metrics := &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&m.totalRequests),
		CacheHits:     atomic.LoadInt64(&m.hits),
		CacheMisses:   atomic.LoadInt64(&m.misses),
		MaxLatencyMs:  float64(atomic.LoadInt64(&m.maxLatency)) / 1e6,
	}
	if metrics.TotalRequests > 0 {
		metrics.HitRatio = float64(metrics.CacheHits) / float64(metrics.TotalRequests)
	}
	if count := atomic.LoadInt64(&m.latencyCount); count > 0 {
		metrics.AvgLatencyMs = float64(atomic.LoadInt64(&m.latencySum)) / float64(count) / 1e6 // нс в мс
	}

	m.mu.Lock()
	metrics.LastUpdate = m.lastUpdate
	m.mu.Unlock()
	return metrics
}

// RegisterCollectors публикует статистику repo в Prometheus как
// <namespace>_cache_requests_total, _cache_hits_total и _cache_hit_ratio.
func RegisterCollectors(reg prometheus.Registerer, namespace string, repo CacheRepo) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Обращения к кешу игроков.",
		}, func() float64 { return float64(repo.GetMetrics().TotalRequests) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Попадания в кеш игроков.",
		}, func() float64 { return float64(repo.GetMetrics().CacheHits) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_hit_ratio",
			Help:      "Доля попаданий в кеш.",
		}, func() float64 { return repo.GetMetrics().HitRatio }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
