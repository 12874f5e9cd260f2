package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/lumberjack/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisCache реализует CacheRepo поверх Redis.
// Ключи получают префикс из конфигурации, чтобы несколько миров могли делить один Redis.
type RedisCache struct {
	client      *redis.Client
	config      *CacheConfig
	invalidator CacheInvalidator
	metrics     metricsRecorder
}

// NewRedisCache подключается к Redis и проверяет соединение.
// RedisURL - host:port либо redis://[:password@]host:port/db; поля URL
// перекрываются явными RedisPassword и RedisDB. invalidator может быть nil.
func NewRedisCache(config *CacheConfig, invalidator CacheInvalidator) (*RedisCache, error) {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = time.Hour
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "lumberjack:"
	}

	opts, err := redisOptions(config)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s недоступен: %w", opts.Addr, err)
	}

	logging.Info("🟥 Redis-кеш подключён: %s db=%d (префикс %s)", opts.Addr, opts.DB, config.KeyPrefix)
	return &RedisCache{
		client:      rdb,
		config:      config,
		invalidator: invalidator,
	}, nil
}

func redisOptions(config *CacheConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: config.RedisURL}
	if strings.HasPrefix(config.RedisURL, "redis://") || strings.HasPrefix(config.RedisURL, "rediss://") {
		parsed, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		opts = parsed
	}
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB != 0 {
		opts.DB = config.RedisDB
	}
	opts.PoolSize = config.MaxConnections
	opts.PoolTimeout = config.PoolTimeout
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second
	return opts, nil
}

func (r *RedisCache) key(key string) string {
	return r.config.KeyPrefix + key
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	start := time.Now()
	defer r.metrics.recordLatency(start)

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == nil {
		r.metrics.hit()
		return val, nil
	}

	r.metrics.miss()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	logging.Error("Redis GET %s: %v", key, err)
	return nil, fmt.Errorf("redis get error: %w", err)
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	defer r.metrics.recordLatency(start)

	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		logging.Error("Redis SET %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer r.metrics.recordLatency(start)

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		logging.Error("Redis DEL %s: %v", key, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Invalidate удаляет ключ и уведомляет другие узлы.
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := r.Delete(ctx, key); err != nil {
		return err
	}
	if r.invalidator != nil {
		if err := r.invalidator.PublishInvalidation(ctx, key); err != nil {
			logging.Warn("Не удалось разослать инвалидацию %s: %v", key, err)
		}
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) GetMetrics() *CacheMetrics {
	return r.metrics.snapshot()
}
