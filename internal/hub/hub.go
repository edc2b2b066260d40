package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/dto"
	"github.com/matheusnogalha/draft-os/internal/repository"
	"github.com/matheusnogalha/draft-os/internal/tasks"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 编辑消息携带完整文档树，需要容纳章节内容上限和消息外层
	maxMessageSize = 6 << 20
)

// DefaultLeaseTTL 是编辑租约的默认有效期
const DefaultLeaseTTL = 2 * time.Minute

// HubMessage 的类型
const (
	MessageRegister   = "register"
	MessageUnregister = "unregister"
	MessageClient     = "client"
)

// HubMessage 定义了在 Hub 内部通道传递的消息
type HubMessage struct {
	Type    string
	Client  *Client
	RawData []byte // 仅用于 client 消息 (原始 WebSocket 消息)
}

// FlushEnqueuer 提交会话关闭时尚未保存内容的刷写任务
type FlushEnqueuer interface {
	EnqueueChapterFlush(ctx context.Context, p tasks.ChapterFlushPayload) error
}

// Config 是 Hub 的会话参数
type Config struct {
	QuietPeriod  time.Duration // 自动保存静默期
	SaveTimeout  time.Duration // 单次保存超时
	LeaseTTL     time.Duration // 编辑租约有效期
	FlushOnClose bool          // 会话关闭时通过任务队列写入未保存的内容
}

// Hub 维护活跃的编辑会话，并按顺序处理客户端消息。
// 每个章节同一时间只有一个会话 (由 Redis 编辑租约保证)。
type Hub struct {
	messageChan chan HubMessage

	sessions   map[string]*Client // chapterID -> client
	sessionsMu sync.RWMutex

	store     autosave.Store
	stateRepo repository.StateRepository
	flusher   FlushEnqueuer
	cfg       Config
	clock     autosave.Clock
	log       *logrus.Entry

	flushes  sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// Option 配置 Hub
type Option func(*Hub)

// WithClock 设置会话使用的时钟
func WithClock(c autosave.Clock) Option {
	return func(h *Hub) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithFlushEnqueuer 设置刷写任务的提交者
func WithFlushEnqueuer(f FlushEnqueuer) Option {
	return func(h *Hub) { h.flusher = f }
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(store autosave.Store, stateRepo repository.StateRepository, cfg Config, opts ...Option) *Hub {
	if store == nil {
		panic("autosave Store cannot be nil for Hub")
	}
	if stateRepo == nil {
		panic("StateRepository cannot be nil for Hub")
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = autosave.DefaultQuietPeriod
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = autosave.DefaultSaveTimeout
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	h := &Hub{
		messageChan: make(chan HubMessage, 512),
		sessions:    make(map[string]*Client),
		store:       store,
		stateRepo:   stateRepo,
		cfg:         cfg,
		clock:       autosave.RealClock(),
		log:         logrus.WithField("component", "hub"),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cfg.FlushOnClose && h.flusher == nil {
		h.log.Warn("FlushOnClose enabled without a flush enqueuer, unsaved content will be discarded on close")
	}
	return h
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	h.log.Info("Hub is running...")
	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case MessageRegister:
				h.registerClient(msg.Client)
			case MessageUnregister:
				h.unregisterClient(msg.Client)
			case MessageClient:
				// 同步处理以保证编辑按发出顺序进入引擎，引擎调用不阻塞
				msg.Client.session.handleMessage(msg.RawData)
			default:
				h.log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		case <-h.done:
			h.log.Info("Hub is shutting down...")
			return
		}
	}
}

// OpenSession 获取章节的编辑租约并创建会话。initial 是会话启动时最近保存的内容。
// tokenExpiry 之后会话的保存被视为未授权。章节已被其他会话打开时返回 repository.ErrLeaseHeld。
func (h *Hub) OpenSession(ctx context.Context, userID uint, chapterID string, tokenExpiry time.Time, initial json.RawMessage) (*Session, error) {
	sessionID := uuid.NewString()
	logCtx := h.log.WithFields(logrus.Fields{"user_id": userID, "chapter_id": chapterID, "session_id": sessionID})

	if err := h.stateRepo.AcquireEditLease(ctx, chapterID, sessionID, h.cfg.LeaseTTL); err != nil {
		if errors.Is(err, repository.ErrLeaseHeld) {
			logCtx.Warn("Chapter already open in another session")
			return nil, err
		}
		logCtx.WithError(err).Error("Failed to acquire edit lease")
		return nil, fmt.Errorf("acquire edit lease: %w", err)
	}

	s := newSession(h, sessionID, userID, chapterID, tokenExpiry, initial)
	logCtx.Info("Editing session opened")
	return s, nil
}

// Register 把已升级连接的客户端交给 Hub。Hub 忙或已关闭时返回 false。
func (h *Hub) Register(client *Client) bool {
	select {
	case h.messageChan <- HubMessage{Type: MessageRegister, Client: client}:
		return true
	case <-h.done:
		return false
	default:
		return false
	}
}

// queueBlocking 阻塞发送，直到 Hub 接收或关闭
func (h *Hub) queueBlocking(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	case <-h.done:
		return false
	}
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		h.log.Error("Hub: Attempted to register a nil client")
		return
	}
	chapterID := client.session.ChapterID()
	logCtx := client.log.WithField("action", "registerClient")

	h.sessionsMu.Lock()
	select {
	case <-h.done:
		h.closeClientLocked(client)
		h.sessionsMu.Unlock()
		logCtx.Warn("Hub is shutting down, client rejected")
		return
	default:
	}
	if prev, ok := h.sessions[chapterID]; ok && prev != client {
		// 旧会话的租约已过期并被新会话取得
		logCtx.Warn("Replacing stale session for chapter")
		h.closeClientLocked(prev)
	}
	h.sessions[chapterID] = client
	h.sessionsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	client.session.attach(client)
}

// unregisterClient 处理客户端注销逻辑。同一个客户端可能被注销多次。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	h.sessionsMu.Lock()
	if current, ok := h.sessions[client.session.ChapterID()]; ok && current == client {
		delete(h.sessions, client.session.ChapterID())
	}
	h.closeClientLocked(client)
	h.sessionsMu.Unlock()
	client.log.Info("Client unregistered from Hub")
}

func (h *Hub) closeClientLocked(client *Client) {
	client.session.Close()
	client.closeSend()
}

// ActiveSessions 返回当前会话数
func (h *Hub) ActiveSessions() int {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()
	return len(h.sessions)
}

// Shutdown 关闭所有会话并等待刷写任务提交完成，ctx 控制最长等待时间。
func (h *Hub) Shutdown(ctx context.Context) {
	h.stopOnce.Do(func() {
		close(h.done)
		h.sessionsMu.Lock()
		for chapterID, client := range h.sessions {
			h.closeClientLocked(client)
			delete(h.sessions, chapterID)
		}
		h.sessionsMu.Unlock()
	})

	waited := make(chan struct{})
	go func() {
		h.flushes.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		h.log.Info("All editing sessions closed")
	case <-ctx.Done():
		h.log.Warn("Timed out waiting for session flushes")
	}
}

// publishStatus 把状态发布到 Redis，供其他实例或监控订阅
func (h *Hub) publishStatus(chapterID string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.stateRepo.PublishStatus(ctx, chapterID, payload); err != nil {
		h.log.WithField("chapter_id", chapterID).WithError(err).Debug("Failed to publish save status")
	}
}

func marshalMessage(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// dto 中的类型都可以序列化
		logrus.WithError(err).Error("Failed to marshal websocket message")
		return nil
	}
	return b
}

// statusMessage 构造状态消息
func statusMessage(chapterID string, ev autosave.StatusEvent) []byte {
	if ev.Status == autosave.StatusFailed {
		return marshalMessage(dto.ErrorMessage{
			Type:    dto.TypeError,
			Status:  string(ev.Status),
			Message: clientErrorMessage(ev.Err),
		})
	}
	return marshalMessage(dto.StatusMessage{
		Type:      dto.TypeStatus,
		ChapterID: chapterID,
		Status:    string(ev.Status),
		Attempt:   ev.AttemptID,
	})
}

// clientErrorMessage 返回可以展示给用户的错误描述
func clientErrorMessage(err error) string {
	switch {
	case errors.Is(err, autosave.ErrUnauthorized):
		return "session expired, please sign in again"
	case errors.Is(err, autosave.ErrNotFound):
		return "this chapter no longer exists"
	case errors.Is(err, repository.ErrLeaseHeld):
		return "this chapter was opened in another session"
	default:
		return "autosave stopped"
	}
}
