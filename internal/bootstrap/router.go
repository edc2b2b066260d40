package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	httpHandler "github.com/matheusnogalha/draft-os/internal/handler/http"
	wsHandler "github.com/matheusnogalha/draft-os/internal/handler/websocket"
	"github.com/matheusnogalha/draft-os/internal/middleware"
	"github.com/matheusnogalha/draft-os/internal/repository"
)

// Handlers 汇总路由需要的处理器
type Handlers struct {
	Auth    *httpHandler.AuthHandler
	Book    *httpHandler.BookHandler
	Chapter *httpHandler.ChapterHandler
	WS      *wsHandler.WebSocketHandler
}

// NewRouter 创建 Gin Engine 并注册所有路由
func NewRouter(cfg *Config, log *logrus.Logger, stateRepo repository.StateRepository, h Handlers) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSOrigin))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	limit := middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow)
	auth := middleware.Auth(cfg.JWTSecret)

	api := router.Group("/api")
	authRoutes := api.Group("/auth").Use(limit)
	{
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
	}
	// 认证之后再限流，按用户计数
	protected := api.Group("").Use(auth, limit)
	{
		protected.GET("/auth/me", h.Auth.Me)
		protected.GET("/books", h.Book.ListBooks)
		protected.POST("/books", h.Book.CreateBook)
		protected.GET("/books/:bookId/chapters", h.Chapter.ListChapters)
		protected.POST("/books/:bookId/chapters", h.Chapter.CreateChapter)
		protected.GET("/chapters/:chapterId", h.Chapter.GetChapter)
		protected.PUT("/chapters/:chapterId/content", h.Chapter.SaveContent)
	}
	wsRoutes := router.Group("/ws").Use(auth, limit)
	{
		wsRoutes.GET("/chapters/:chapterId", h.WS.HandleConnection)
	}
	return router
}

// CORSMiddleware 允许配置的前端来源访问 API
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		// token 可能出现在查询参数中，不记录
		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		})
		if userID, ok := c.Get(middleware.ContextUserID); ok {
			entry = entry.WithField("user_id", userID)
		}

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
