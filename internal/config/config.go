package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера.
type Config struct {
	Game      GameConfig      `yaml:"game"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type GameConfig struct {
	Rules           string `yaml:"rules"`     // strict | legacy
	WorldKey        string `yaml:"world_key"` // ключ мира в хранилище
	NodeID          string `yaml:"node_id"`   // имя узла в событиях и инвалидациях
	ConflictRetries int    `yaml:"conflict_retries"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	RESTPort        int           `yaml:"rest_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "LUMBERJACK_REST_PORT", 8088)
}

// Addr возвращает адрес для http.Server.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GetRESTPort())
}

type StorageConfig struct {
	Backend  string `yaml:"backend"`   // memory | badger | mariadb
	DataPath string `yaml:"data_path"` // каталог Badger
	Compress bool   `yaml:"compress"`  // zstd для значений Badger
	MariaDSN string `yaml:"mariadb_dsn"`
}

// GetMariaDSN возвращает DSN с приоритетом: config -> env LUMBERJACK_MARIADB_DSN.
func (s *StorageConfig) GetMariaDSN() string {
	return getStringWithEnvFallback(s.MariaDSN, "LUMBERJACK_MARIADB_DSN", "")
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"` // none | memory | redis
	TTL           time.Duration `yaml:"ttl"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	// Инвалидация между узлами через NATS; пустой URL - только локальный кэш.
	InvalidationURL     string `yaml:"invalidation_url"`
	InvalidationSubject string `yaml:"invalidation_subject"`
}

// GetRedisURL возвращает адрес Redis с поддержкой REDIS_URL.
func (c *CacheConfig) GetRedisURL() string {
	return getStringWithEnvFallback(c.RedisURL, "REDIS_URL", "localhost:6379")
}

type EventBusConfig struct {
	Backend    string `yaml:"backend"` // memory | jetstream | none
	URL        string `yaml:"url"`
	Stream     string `yaml:"stream"`
	Subject    string `yaml:"subject"`
	Retention  int    `yaml:"retention_hours"`
	Capacity   int    `yaml:"capacity"` // очередь подписчика MemoryBus
	LogEvents  bool   `yaml:"log_events"`
	DeliverAll bool   `yaml:"deliver_all"`
}

// GetURL возвращает адрес NATS с поддержкой NATS_URL.
func (e *EventBusConfig) GetURL() string {
	return getStringWithEnvFallback(e.URL, "NATS_URL", "nats://127.0.0.1:4222")
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"` // base64, не меньше 32 байт
	AccessTTL          time.Duration `yaml:"access_ttl"`
	SessionMaxValidity time.Duration `yaml:"session_max_validity"`
	UserStore          string        `yaml:"user_store"` // memory | mongo | mariadb
	Mongo              MongoConfig   `yaml:"mongo"`
	Maria              MariaConfig   `yaml:"mariadb"`
}

// GetJWTSecret возвращает секрет с поддержкой LUMBERJACK_JWT_SECRET.
func (a *AuthConfig) GetJWTSecret() string {
	return getStringWithEnvFallback(a.JWTSecret, "LUMBERJACK_JWT_SECRET", "")
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"` // host:port OTLP HTTP, пусто - localhost:4318
	Insecure    bool   `yaml:"insecure"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	FileLevel string `yaml:"file_level"`
	Dir       string `yaml:"dir"`
}

// Default возвращает конфигурацию для локального запуска без внешних сервисов.
func Default() *Config {
	return &Config{
		Game: GameConfig{
			Rules:           "strict",
			WorldKey:        "main",
			NodeID:          "lumberjack-1",
			ConflictRetries: 3,
		},
		Server: ServerConfig{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  "memory",
			DataPath: "data/world",
			Compress: true,
		},
		Cache: CacheConfig{
			Backend:             "none",
			TTL:                 5 * time.Minute,
			InvalidationSubject: "lumberjack.cache.invalidate",
		},
		EventBus: EventBusConfig{
			Backend:   "memory",
			Stream:    "LUMBERJACK",
			Subject:   "lumberjack.events",
			Retention: 24,
			Capacity:  1024,
		},
		Auth: AuthConfig{
			AccessTTL:          24 * time.Hour,
			SessionMaxValidity: 23 * time.Hour,
			UserStore:          "memory",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "lumberjack",
			Insecure:    true,
		},
		Log: LogConfig{
			Level:     "info",
			FileLevel: "debug",
			Dir:       "logs",
		},
	}
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", берётся ENV LUMBERJACK_CONFIG; если и он пуст - возвращаются дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("LUMBERJACK_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет значения, которые нельзя исправить дефолтами.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: недопустимое значение %q (ожидается одно из %v)", field, value, allowed))
	}

	check("game.rules", c.Game.Rules, "", "strict", "legacy")
	check("storage.backend", c.Storage.Backend, "memory", "badger", "mariadb")
	check("cache.backend", c.Cache.Backend, "none", "memory", "redis")
	check("eventbus.backend", c.EventBus.Backend, "none", "memory", "jetstream")
	check("auth.user_store", c.Auth.UserStore, "memory", "mongo", "mariadb")

	if c.Game.ConflictRetries < 0 {
		errs = append(errs, errors.New("game.conflict_retries не может быть отрицательным"))
	}
	if c.Storage.Backend == "badger" && c.Storage.DataPath == "" {
		errs = append(errs, errors.New("storage.data_path обязателен для badger"))
	}
	if c.Storage.Backend == "mariadb" && c.Storage.GetMariaDSN() == "" {
		errs = append(errs, errors.New("storage.mariadb_dsn (или LUMBERJACK_MARIADB_DSN) обязателен для mariadb"))
	}
	if c.Auth.SessionMaxValidity < 0 || c.Auth.AccessTTL < 0 {
		errs = append(errs, errors.New("auth: сроки действия токенов не могут быть отрицательными"))
	}
	return errors.Join(errs...)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}
