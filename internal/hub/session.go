package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/dto"
	"github.com/matheusnogalha/draft-os/internal/repository"
	"github.com/matheusnogalha/draft-os/internal/tasks"
)

// flushTimeout 是会话关闭后等待进行中的保存并提交刷写任务的最长时间
const flushTimeout = 15 * time.Second

// Session 是一个章节的编辑会话，持有该章节的自动保存引擎。
type Session struct {
	id        string
	userID    uint
	chapterID string
	hub       *Hub
	engine    *autosave.Engine
	initial   json.RawMessage
	log       *logrus.Entry

	mu           sync.Mutex
	client       *Client
	leaseRenewed time.Time
	renewing     bool

	closeOnce sync.Once
}

func newSession(h *Hub, id string, userID uint, chapterID string, tokenExpiry time.Time, initial json.RawMessage) *Session {
	s := &Session{
		id:           id,
		userID:       userID,
		chapterID:    chapterID,
		hub:          h,
		initial:      initial,
		leaseRenewed: h.clock.Now(),
		log: h.log.WithFields(logrus.Fields{
			"user_id":    userID,
			"chapter_id": chapterID,
			"session_id": id,
		}),
	}
	gateway := autosave.NewGateway(h.store,
		autosave.SessionIdentity(userID, tokenExpiry, h.clock),
		autosave.WithGatewayClock(h.clock),
		autosave.WithSaveTimeout(h.cfg.SaveTimeout),
		autosave.WithGatewayLogger(s.log),
	)
	s.engine = autosave.NewEngine(chapterID, initial, gateway,
		autosave.WithQuietPeriod(h.cfg.QuietPeriod),
		autosave.WithClock(h.clock),
		autosave.WithLogger(s.log),
		autosave.WithListener(s.onStatus),
		autosave.WithFatalHandler(s.onFatal),
	)
	return s
}

// ID 返回会话 ID
func (s *Session) ID() string { return s.id }

// UserID 返回会话所属用户
func (s *Session) UserID() uint { return s.userID }

// ChapterID 返回会话编辑的章节
func (s *Session) ChapterID() string { return s.chapterID }

// Engine 返回会话的自动保存引擎
func (s *Session) Engine() *autosave.Engine { return s.engine }

// attach 绑定客户端并发送会话的初始文档
func (s *Session) attach(c *Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	c.trySend(marshalMessage(dto.DocumentMessage{
		Type:      dto.TypeDocument,
		ChapterID: s.chapterID,
		Content:   s.initial,
		Status:    string(s.engine.Status()),
	}))
}

func (s *Session) send(message []byte) {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c != nil && message != nil {
		c.trySend(message)
	}
}

// onStatus 按状态变化的顺序被调用，不能阻塞
func (s *Session) onStatus(ev autosave.StatusEvent) {
	msg := statusMessage(s.chapterID, ev)
	s.send(msg)
	if msg != nil {
		go s.hub.publishStatus(s.chapterID, msg)
	}
}

// onFatal 在独立的 goroutine 中调用。错误消息已由 onStatus 发出，这里关闭连接。
func (s *Session) onFatal(err error) {
	s.log.WithError(err).Warn("Autosave stopped, closing editing session")
	s.disconnect()
}

// disconnect 请求 Hub 注销客户端
func (s *Session) disconnect() {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c != nil {
		s.hub.queueBlocking(HubMessage{Type: MessageUnregister, Client: c})
	}
}

// handleMessage 处理客户端消息，在 Hub 的主循环中调用
func (s *Session) handleMessage(raw []byte) {
	var msg dto.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.WithError(err).Debug("Invalid client message")
		s.send(marshalMessage(dto.ErrorMessage{Type: dto.TypeError, Message: "invalid message"}))
		return
	}

	switch msg.Type {
	case dto.TypeEdit:
		if len(msg.Content) == 0 || string(msg.Content) == "null" {
			s.send(marshalMessage(dto.ErrorMessage{Type: dto.TypeError, Message: "edit without content"}))
			return
		}
		if _, err := s.engine.Edit(msg.Content); err != nil {
			s.rejected("edit", err)
			return
		}
		s.renewLease()

	case dto.TypeRetry:
		if err := s.engine.Retry(); err != nil {
			s.rejected("retry", err)
		}

	default:
		s.send(marshalMessage(dto.ErrorMessage{Type: dto.TypeError, Message: "unknown message type"}))
	}
}

// rejected 告知客户端引擎已不再接受修改，内容不会被保存
func (s *Session) rejected(op string, err error) {
	s.log.WithError(err).WithField("op", op).Debug("Client message rejected by engine")
	msg := dto.ErrorMessage{Type: dto.TypeError, Message: clientErrorMessage(err)}
	if errors.Is(err, autosave.ErrClosed) || autosave.IsFatal(err) {
		msg.Status = string(autosave.StatusFailed)
	}
	s.send(marshalMessage(msg))
}

// renewLease 在编辑时刷新租约，最多每三分之一个有效期一次，不阻塞调用者
func (s *Session) renewLease() {
	ttl := s.hub.cfg.LeaseTTL
	now := s.hub.clock.Now()
	s.mu.Lock()
	if s.renewing || now.Sub(s.leaseRenewed) < ttl/3 {
		s.mu.Unlock()
		return
	}
	s.renewing = true
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.hub.stateRepo.AcquireEditLease(ctx, s.chapterID, s.id, ttl)

		s.mu.Lock()
		s.renewing = false
		if err == nil {
			s.leaseRenewed = now
		}
		s.mu.Unlock()

		switch {
		case err == nil:
		case errors.Is(err, repository.ErrLeaseHeld):
			// 租约过期后被其他会话取得，本会话不能再写入
			s.log.Warn("Edit lease lost to another session")
			s.send(marshalMessage(dto.ErrorMessage{
				Type:    dto.TypeError,
				Status:  string(autosave.StatusFailed),
				Message: clientErrorMessage(err),
			}))
			s.disconnect()
		default:
			s.log.WithError(err).Warn("Failed to renew edit lease")
		}
	}()
}

// Close 结束会话：取消尚未触发的保存，释放租约。
// 开启 FlushOnClose 时，等待进行中的保存结束后把仍未保存的内容提交为刷写任务。可以重复调用。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.engine.Close()
		closedAt := s.hub.clock.Now().UTC()

		s.hub.flushes.Add(1)
		go func() {
			defer s.hub.flushes.Done()
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()

			if err := s.hub.stateRepo.ReleaseEditLease(ctx, s.chapterID, s.id); err != nil {
				s.log.WithError(err).Warn("Failed to release edit lease")
			}

			snap, unsaved, err := s.engine.Unsaved(ctx)
			if err != nil {
				s.log.WithError(err).Error("Timed out waiting for in-flight save")
				return
			}
			if !unsaved {
				s.log.Info("Editing session closed, all changes saved")
				return
			}
			if !s.hub.cfg.FlushOnClose || s.hub.flusher == nil {
				s.log.WithField("produced_at", snap.ProducedAt).Warn("Editing session closed with unsaved changes")
				return
			}
			err = s.hub.flusher.EnqueueChapterFlush(ctx, tasks.ChapterFlushPayload{
				ChapterID: s.chapterID,
				UserID:    s.userID,
				Content:   snap.Content,
				ClosedAt:  closedAt,
			})
			if err != nil {
				s.log.WithError(err).Error("Failed to enqueue flush of unsaved changes")
				return
			}
			s.log.WithField("produced_at", snap.ProducedAt).Info("Unsaved changes queued for flush")
		}()
	})
}
