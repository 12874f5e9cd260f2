package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/lumberjack/internal/api"
	"github.com/annel0/lumberjack/internal/auth"
	"github.com/annel0/lumberjack/internal/cache"
	"github.com/annel0/lumberjack/internal/config"
	"github.com/annel0/lumberjack/internal/eventbus"
	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/logging"
	"github.com/annel0/lumberjack/internal/observability"
	"github.com/annel0/lumberjack/internal/processor"
	"github.com/annel0/lumberjack/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или LUMBERJACK_CONFIG)")
	flag.Parse()

	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.LogDir = cfg.Log.Dir
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	if err := applyLogLevels(cfg.Log); err != nil {
		logging.Warn("⚠️ %v", err)
	}

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		log.Fatalf("❌ %v", err)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func applyLogLevels(cfg config.LogConfig) error {
	console, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	file, err := logging.ParseLevel(cfg.FileLevel)
	if err != nil {
		return err
	}
	logging.GetLoggerManager().SetLevels(console, file)
	return nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("🪓 Запуск Lumberjack Board Server (node=%s, rules=%s)", cfg.Game.NodeID, cfg.Game.Rules)

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ХРАНИЛИЩЕ ===
	store, err := openStore(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error("❌ Ошибка закрытия хранилища: %v", err)
		}
	}()

	// === ШИНА СОБЫТИЙ ===
	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	if bus != nil {
		defer bus.Close()

		exporter, err := eventbus.NewMetricsExporter(bus, registry)
		if err != nil {
			return fmt.Errorf("eventbus metrics: %w", err)
		}
		exporter.Start()
		defer exporter.Stop()

		if cfg.EventBus.LogEvents {
			sub, err := eventbus.StartLoggingListener(ctx, bus, logging.GetComponentLogger(logging.ComponentEvents))
			if err != nil {
				return fmt.Errorf("event logger: %w", err)
			}
			defer sub.Unsubscribe()
		}
	}

	// === ОБРАБОТЧИК ДЕЙСТВИЙ ===
	rules, err := game.ParseRules(cfg.Game.Rules)
	if err != nil {
		return err
	}
	procMetrics, err := processor.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("processor metrics: %w", err)
	}
	clock := processor.SystemClock{}
	opts := []processor.Option{
		processor.WithRules(rules),
		processor.WithWorldKey(cfg.Game.WorldKey),
		processor.WithSource(cfg.Game.NodeID),
		processor.WithConflictRetries(cfg.Game.ConflictRetries),
		processor.WithMetrics(procMetrics),
		processor.WithLogger(logging.GetGameLogger()),
	}
	if bus != nil {
		opts = append(opts, processor.WithEventBus(bus))
	}
	proc := processor.New(store, clock, auth.NewSessionAuthorizer(clock.Now), opts...)

	// Мир создаётся сразу, чтобы первый запрос не платил за инициализацию
	if _, err := proc.World(ctx); err != nil {
		return fmt.Errorf("init world: %w", err)
	}

	// === АУТЕНТИФИКАЦИЯ ===
	users, err := openUserRepo(ctx, cfg.Auth)
	if err != nil {
		return err
	}
	defer users.Close()

	var secret []byte
	if s := cfg.Auth.GetJWTSecret(); s != "" {
		if secret, err = auth.DecodeSecret(s); err != nil {
			return fmt.Errorf("auth.jwt_secret: %w", err)
		}
	} else {
		logging.Warn("⚠️ JWT секрет не задан, используется случайный: токены не переживут перезапуск")
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.Auth.AccessTTL, cfg.Auth.SessionMaxValidity)
	if err != nil {
		return err
	}
	authn := auth.NewAuthenticator(users, tokens, logging.GetComponentLogger(logging.ComponentAuth))

	// === REST API ===
	server, err := api.NewRestServer(api.Config{
		Addr:          cfg.Server.Addr(),
		Processor:     proc,
		Authenticator: authn,
		Registry:      registry,
		Logger:        logging.GetServerLogger(),
		NodeID:        cfg.Game.NodeID,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	port := cfg.Server.GetRESTPort()
	logging.Info("✅ Все сервисы запущены и готовы принимать соединения")
	logging.Info("   🌐 REST API: http://localhost:%d", port)
	logging.Info("   ❤️  Health check: http://localhost:%d/health", port)
	logging.Info("   📈 Метрики: http://localhost:%d/metrics", port)

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rest api: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	return nil
}

// openStore открывает хранилище по storage.backend и, если задано, оборачивает его кешем.
func openStore(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (storage.Store, error) {
	var (
		backend storage.Store
		err     error
	)
	switch cfg.Storage.Backend {
	case "badger":
		backend, err = storage.NewBadgerStore(cfg.Storage.DataPath, cfg.Storage.Compress)
	case "mariadb":
		backend, err = storage.NewMariaStore(cfg.Storage.GetMariaDSN())
	default:
		backend = storage.NewMemoryStore()
		logging.Warn("⚠️ Используется хранилище в памяти: данные теряются при перезапуске")
	}
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", cfg.Storage.Backend, err)
	}
	logging.Info("💾 Хранилище: %s", cfg.Storage.Backend)

	if cfg.Cache.Backend == "" || cfg.Cache.Backend == "none" {
		return backend, nil
	}

	var invalidator cache.CacheInvalidator
	if cfg.Cache.InvalidationURL != "" {
		inv, err := cache.NewNATSInvalidator(&cache.InvalidatorConfig{
			NATSURL: cfg.Cache.InvalidationURL,
			Subject: cfg.Cache.InvalidationSubject,
		}, cfg.Game.NodeID)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("cache invalidator: %w", err)
		}
		invalidator = inv
	}

	var repo cache.CacheRepo
	switch cfg.Cache.Backend {
	case "redis":
		repo, err = cache.NewRedisCache(&cache.CacheConfig{
			RedisURL:      cfg.Cache.GetRedisURL(),
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
			DefaultTTL:    cfg.Cache.TTL,
		}, invalidator)
	default:
		repo = cache.NewMemoryCache(cfg.Cache.TTL, invalidator)
	}
	if err != nil {
		if invalidator != nil {
			invalidator.Close()
		}
		backend.Close()
		return nil, fmt.Errorf("cache %s: %w", cfg.Cache.Backend, err)
	}

	if err := cache.RegisterCollectors(reg, "lumberjack", repo); err != nil {
		repo.Close()
		if invalidator != nil {
			invalidator.Close()
		}
		backend.Close()
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	cached := cache.NewCachedStore(backend, repo, invalidator, cfg.Cache.TTL)
	if err := cached.Start(ctx); err != nil {
		cached.Close()
		return nil, fmt.Errorf("cache subscribe: %w", err)
	}
	logging.Info("⚡ Кеш: %s (инвалидация через NATS: %v)", cfg.Cache.Backend, invalidator != nil)
	return cached, nil
}

func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "jetstream":
		bus, err := eventbus.NewJetStreamBus(eventbus.JetStreamConfig{
			URL:        cfg.GetURL(),
			Stream:     cfg.Stream,
			Subject:    cfg.Subject,
			Retention:  hours(cfg.Retention),
			DeliverAll: cfg.DeliverAll,
		})
		if err != nil {
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		logging.Info("📨 Шина событий: JetStream %s (stream %s)", cfg.GetURL(), cfg.Stream)
		return bus, nil
	default:
		logging.Info("📨 Шина событий: в памяти")
		return eventbus.NewMemoryBus(cfg.Capacity), nil
	}
}

func openUserRepo(ctx context.Context, cfg config.AuthConfig) (auth.UserRepository, error) {
	switch cfg.UserStore {
	case "mongo":
		repo, err := auth.NewMongoUserRepo(ctx, auth.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, fmt.Errorf("не удалось подключиться к MongoDB: %w", err)
		}
		logging.Info("✅ MongoDB подключена успешно")
		return repo, nil
	case "mariadb":
		repo, err := auth.NewMariaUserRepo(ctx, auth.MariaConfig{
			Host:     cfg.Maria.Host,
			Port:     cfg.Maria.Port,
			Database: cfg.Maria.Database,
			Username: cfg.Maria.Username,
			Password: cfg.Maria.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
		}
		logging.Info("✅ MariaDB подключена успешно")
		return repo, nil
	case "memory", "":
		logging.Warn("⚠️ Учётные записи хранятся в памяти")
		return auth.NewMemoryUserRepo(), nil
	default:
		return nil, errors.New("неизвестный auth.user_store: " + cfg.UserStore)
	}
}

func hours(h int) time.Duration {
	return time.Duration(h) * time.Hour
}
