package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/lumberjack/internal/auth"
	"github.com/annel0/lumberjack/internal/logging"
	"github.com/annel0/lumberjack/internal/middleware"
	"github.com/annel0/lumberjack/internal/processor"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serverVersion = "v0.1.0"

// RestServer представляет REST API сервер
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	proc       *processor.Processor
	authn      *auth.Authenticator
	metrics    *ServerMetrics
	logger     *logging.Logger
	encoder    *zstd.Encoder
	nodeID     string
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr          string // адрес для запуска сервера, по умолчанию :8088
	Processor     *processor.Processor
	Authenticator *auth.Authenticator
	Registry      *prometheus.Registry // HTTP-метрики и /metrics; nil - без метрик
	Logger        *logging.Logger
	NodeID        string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"` // машиночитаемая причина отказа
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.Processor == nil || cfg.Authenticator == nil {
		return nil, errors.New("api: processor and authenticator are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetServerLogger()
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	// otelgin первым, чтобы RequestLogger увидел span запроса.
	router.Use(otelgin.Middleware("lumberjack_api"))
	router.Use(middleware.NewRequestLogger(cfg.Logger).Handler())

	if cfg.Registry != nil {
		promMw, err := middleware.NewPrometheusMiddleware("lumberjack_api", cfg.Registry)
		if err != nil {
			return nil, fmt.Errorf("http metrics: %w", err)
		}
		router.Use(promMw.Handler())
		middleware.RegisterMetricsEndpoint(router, cfg.Registry)
	}

	rs := &RestServer{
		router:  router,
		proc:    cfg.Processor,
		authn:   cfg.Authenticator,
		metrics: NewServerMetrics(),
		logger:  cfg.Logger,
		encoder: encoder,
		nodeID:  cfg.NodeID,
	}
	rs.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := rs.router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", rs.handleRegister)
		authGroup.POST("/login", rs.handleLogin)
	}

	// Только токен доступа: сессии и игроки создаются от имени самой учётной записи
	api.POST("/sessions", rs.accessMiddleware(), rs.handleStartSession)
	api.POST("/players", rs.accessMiddleware(), rs.handleInitPlayer)

	players := api.Group("/players/:authority")
	{
		players.GET("", rs.handleGetPlayer)
		players.POST("/update", rs.handleUpdate)

		// Токен доступа или сессия
		actions := players.Group("")
		actions.Use(rs.signerMiddleware())
		actions.POST("/chop", rs.handleChop)
		actions.POST("/build", rs.handleBuild)
		actions.POST("/upgrade", rs.handleUpgrade)
		actions.POST("/collect", rs.handleCollect)
	}

	board := api.Group("/board")
	{
		board.GET("", rs.handleBoard)
		board.GET("/history", rs.handleHistory)
		board.GET("/snapshot", rs.handleSnapshot)
	}

	api.GET("/server", rs.handleServerInfo)
	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler сервера (для тестов и встраивания).
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер и блокируется до Shutdown.
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.httpServer.Addr)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown корректно останавливает сервер, дожидаясь активных запросов.
func (rs *RestServer) Shutdown(ctx context.Context) error {
	defer rs.encoder.Close()
	return rs.httpServer.Shutdown(ctx)
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	info := rs.metrics.Snapshot()
	info["version"] = serverVersion
	info["name"] = "Lumberjack Board Server"
	info["node_id"] = rs.nodeID
	info["rules"] = rs.proc.Rules().Name
	info["status"] = "running"

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}
