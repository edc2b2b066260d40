package autosave

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSaveTimeout 是单次保存调用的默认超时。
const DefaultSaveTimeout = 10 * time.Second

// Store 是持久化存储的写接口。实现必须在存储侧检查 userID 是否拥有该文档，
// 并在同一次原子写入中更新内容和修改时间。
// 返回的错误应包装 ErrUnauthorized / ErrNotFound / ErrValidation 之一，其余视为暂时性错误。
type Store interface {
	PersistDocument(ctx context.Context, userID uint, documentID string, content json.RawMessage, at time.Time) error
}

// Saver 执行一次保存。Gateway 实现了它。
type Saver interface {
	Save(ctx context.Context, documentID string, content json.RawMessage) error
}

// Gateway 每次调用只向存储发出一次写入 (内部不重试)，并对结果分类。
type Gateway struct {
	store    Store
	identity IdentityFunc
	clock    Clock
	timeout  time.Duration
	log      *logrus.Entry
}

// GatewayOption 配置 Gateway。
type GatewayOption func(*Gateway)

// WithGatewayClock 设置写入时间戳使用的时钟。
func WithGatewayClock(c Clock) GatewayOption {
	return func(g *Gateway) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithSaveTimeout 设置单次保存的超时，<= 0 表示不设超时。
func WithSaveTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// WithGatewayLogger 设置日志。
func WithGatewayLogger(l *logrus.Entry) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGateway 创建 Gateway。
func NewGateway(store Store, identity IdentityFunc, opts ...GatewayOption) *Gateway {
	if store == nil {
		panic("Store cannot be nil for Gateway")
	}
	if identity == nil {
		panic("IdentityFunc cannot be nil for Gateway")
	}
	g := &Gateway{
		store:    store,
		identity: identity,
		clock:    RealClock(),
		timeout:  DefaultSaveTimeout,
		log:      logrus.WithField("component", "autosave_gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Save 保存文档内容。没有有效身份时直接返回 ErrUnauthorized，不访问存储。
func (g *Gateway) Save(ctx context.Context, documentID string, content json.RawMessage) error {
	logCtx := g.log.WithField("document_id", documentID)

	userID, ok := g.identity(ctx)
	if !ok {
		logCtx.Warn("Save rejected: no authenticated identity")
		return ErrUnauthorized
	}
	logCtx = logCtx.WithField("user_id", userID)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := g.clock.Now()
	err := Classify(g.store.PersistDocument(ctx, userID, documentID, content, start.UTC()))
	if err != nil {
		logCtx.WithError(err).Warn("Document save failed")
		return err
	}
	logCtx.WithField("content_size", len(content)).Debug("Document saved")
	return nil
}
