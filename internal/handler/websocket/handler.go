package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/hub"
	"github.com/matheusnogalha/draft-os/internal/repository"
	"github.com/matheusnogalha/draft-os/internal/service"
)

// WebSocketHandler 负责处理 WebSocket 升级请求并为章节打开编辑会话
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	hub            *hub.Hub
	chapterService *service.ChapterService
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigin 为空时接受所有来源。
func NewWebSocketHandler(h *hub.Hub, chapterService *service.ChapterService, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if chapterService == nil {
		panic("ChapterService cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader:       upgrader,
		hub:            h,
		chapterService: chapterService,
	}
}

// HandleConnection 处理 WebSocket 连接请求
// URL 预期格式: /ws/chapters/{chapterId}
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 获取认证用户 ID 和 token 过期时间 (由 Auth 中间件设置)
	userIDAny, exists := c.Get("user_id")
	if !exists {
		logrus.Warn("WS Handler: User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return // 此时还未升级到 WebSocket
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		logrus.Error("WS Handler: User ID in context is not uint")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	var tokenExp time.Time
	if v, ok := c.Get("token_exp"); ok {
		tokenExp, _ = v.(time.Time)
	}

	chapterID := c.Param("chapterId")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "chapter_id": chapterID})

	// 2. 读取最近保存的内容 (同时检查所有权)
	content, err := h.chapterService.LoadContent(c.Request.Context(), userID, chapterID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChapterNotFound):
			logCtx.WithError(err).Warn("WS Handler: Chapter not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Chapter not found"})
		case errors.Is(err, service.ErrForbidden):
			logCtx.WithError(err).Warn("WS Handler: Chapter belongs to another user")
			c.JSON(http.StatusForbidden, gin.H{"error": "Access to this chapter is forbidden"})
		default:
			logCtx.WithError(err).Error("WS Handler: Error loading chapter content")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chapter"})
		}
		return
	}

	// 3. 取得编辑租约并创建会话
	session, err := h.hub.OpenSession(c.Request.Context(), userID, chapterID, tokenExp, content)
	if err != nil {
		if errors.Is(err, repository.ErrLeaseHeld) {
			c.JSON(http.StatusConflict, gin.H{"error": service.ErrEditSessionActive.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open editing session"})
		}
		return
	}

	// 4. 升级 HTTP 连接到 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 方法会自动发送 HTTP 错误响应，所以这里只需要记录日志
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		session.Close()
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	// 5. 创建 Client 并注册到 Hub
	client := hub.NewClient(h.hub, conn, session)
	if !h.hub.Register(client) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		session.Close()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"))
		_ = conn.Close()
		return
	}

	// 6. 启动客户端的读写 Goroutine
	client.Run()
	logCtx.Info("WS Handler: Client read/write pumps started")
}
