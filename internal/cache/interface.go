package cache

import (
	"context"
	"errors"
	"time"

	"github.com/annel0/lumberjack/internal/game"
)

// Ключи кеша. Один и тот же ключ используется в CacheRepo и в уведомлениях
// инвалидатора, поэтому формат общий для всех узлов:
//
//	player:<authority hex>  - сериализованный game.PlayerState
//	world:<world key>       - сигнал сбросить локальную копию мира
const (
	playerKeyPrefix = "player:"
	worldKeyPrefix  = "world:"
)

func playerCacheKey(authority game.Identity) string {
	return playerKeyPrefix + authority.String()
}

func worldCacheKey(key string) string {
	return worldKeyPrefix + normalizeWorldKey(key)
}

func normalizeWorldKey(key string) string {
	if key == "" {
		return game.DefaultWorldKey
	}
	return key
}

// CacheRepo - кеш байтовых значений с TTL.
type CacheRepo interface {
	// Get возвращает ErrCacheMiss, если ключа нет или он истёк.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set: ttl = 0 означает TTL по умолчанию реализации.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Invalidate удаляет ключ локально и рассылает уведомление другим узлам.
	Invalidate(ctx context.Context, key string) error
	Close() error
	GetMetrics() *CacheMetrics
}

// CacheInvalidator рассылает и принимает уведомления об устаревших ключах.
type CacheInvalidator interface {
	PublishInvalidation(ctx context.Context, key string) error
	// SubscribeInvalidations не доставляет собственные уведомления узла.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

type InvalidationHandler func(key string) error

// CacheMetrics - снимок статистики кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig - параметры Redis.
type CacheConfig struct {
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix"` // по умолчанию "lumberjack:"
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	MaxTTL        time.Duration `yaml:"max_ttl"`

	MaxConnections int           `yaml:"max_connections"`
	PoolTimeout    time.Duration `yaml:"pool_timeout"`
}

var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrInvalidKey = errors.New("invalid key")
)

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
