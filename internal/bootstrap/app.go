package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	httpHandler "github.com/matheusnogalha/draft-os/internal/handler/http"
	wsHandler "github.com/matheusnogalha/draft-os/internal/handler/websocket"
	"github.com/matheusnogalha/draft-os/internal/hub"
	gormpersistence "github.com/matheusnogalha/draft-os/internal/infra/persistence/gorm"
	"github.com/matheusnogalha/draft-os/internal/infra/setup"
	redisstate "github.com/matheusnogalha/draft-os/internal/infra/state/redis"
	"github.com/matheusnogalha/draft-os/internal/service"
	"github.com/matheusnogalha/draft-os/internal/tasks"
	"github.com/matheusnogalha/draft-os/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// NewLogger 按配置设置全局 logger 并返回它，各包通过 logrus 包级函数记录日志
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 1. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel().String(), cfg.AppEnv)

	// 2. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 3. 初始化 Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	bookRepo := gormpersistence.NewGormBookRepository(db)
	chapterRepo := gormpersistence.NewGormChapterRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 4. 初始化 Services
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	bookService := service.NewBookService(bookRepo)
	chapterService := service.NewChapterService(chapterRepo, stateRepo, cfg.ContentCacheTTL)
	chapterStore := service.NewChapterStore(chapterService)
	log.Info("Services initialized")

	// 5. 初始化 Hub
	hubInstance := hub.NewHub(chapterStore, stateRepo, hub.Config{
		QuietPeriod:  cfg.QuietPeriod,
		LeaseTTL:     cfg.LeaseTTL,
		FlushOnClose: cfg.FlushOnClose,
	}, hub.WithFlushEnqueuer(tasks.NewEnqueuer(asynqClient)))
	log.WithFields(logrus.Fields{
		"quiet_period":   cfg.QuietPeriod,
		"lease_ttl":      cfg.LeaseTTL,
		"flush_on_close": cfg.FlushOnClose,
	}).Info("Hub initialized")

	// 6. 初始化 Handlers
	// 一次性保存与编辑会话共用存储和错误分类，身份来自请求 context
	saveGateway := autosave.NewGateway(chapterStore, autosave.ContextIdentity(),
		autosave.WithGatewayLogger(log.WithField("component", "http_save")))
	handlers := Handlers{
		Auth:    httpHandler.NewAuthHandler(authService),
		Book:    httpHandler.NewBookHandler(bookService),
		Chapter: httpHandler.NewChapterHandler(chapterService, saveGateway),
		WS:      wsHandler.NewWebSocketHandler(hubInstance, chapterService, cfg.CORSOrigin),
	}

	// 7. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, chapterService, cfg.WorkerConcurrency, log)
	log.Info("Worker server initialized")

	// 8. 路由和 HTTP Server
	router := NewRouter(cfg, log, stateRepo, handlers)
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Application assembled successfully")
	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() error {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()

	if err := a.AsynqServer.Start(); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

// Shutdown 优雅地关闭应用。编辑会话在 Redis 和任务客户端关闭之前结束，
// 以便释放租约并提交未保存内容的刷写任务。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// 1. 停止接受新请求
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 关闭编辑会话
	if a.Hub != nil {
		a.Hub.Shutdown(ctx)
	}

	// 3. 关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 5. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	// 6. 关闭数据库连接池
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}
