package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Option 配置 Engine。
type Option func(*Engine)

// WithQuietPeriod 设置防抖静默期。
func WithQuietPeriod(d time.Duration) Option {
	return func(e *Engine) { e.quiet = d }
}

// WithClock 设置定时器使用的时钟。
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger 设置日志。
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithFatalHandler 设置致命错误回调 (未授权或文档不存在)。
// 回调在独立的 goroutine 中执行，可以安全地调用引擎。
func WithFatalHandler(fn func(error)) Option {
	return func(e *Engine) { e.onFatal = fn }
}

// WithListener 在创建时订阅状态变化。
func WithListener(l Listener) Option {
	return func(e *Engine) { e.pendingListeners = append(e.pendingListeners, l) }
}

// Engine 是单个文档编辑会话的自动保存引擎。
//
// 编辑通过 Edit/OnEdit 进入，Debouncer 在静默期结束后派发保存，
// 同一时间最多一次保存在进行中。所有方法都可以并发调用。
type Engine struct {
	mu sync.Mutex

	documentID string
	saver      Saver
	clock      Clock
	quiet      time.Duration
	log        *logrus.Entry
	onFatal    func(error)

	tracker   *DirtyTracker
	reporter  *Reporter
	debouncer *Debouncer

	seq       uint64 // 最后发出的快照序号
	attempts  uint64
	inFlight  *Attempt
	idle      chan struct{} // 没有保存在进行中时处于关闭状态
	persisted json.RawMessage // 最后确认写入的内容；失败的保存可能已部分写入，此时为 nil
	last      *Attempt
	fatal     error
	closed    bool

	pendingListeners []Listener
}

// NewEngine 为 documentID 创建引擎。initial 是会话启动时从存储读取的内容，
// 它被视为已持久化，引擎初始状态为 saved。
func NewEngine(documentID string, initial json.RawMessage, saver Saver, opts ...Option) *Engine {
	if saver == nil {
		panic("Saver cannot be nil for Engine")
	}
	e := &Engine{
		documentID: documentID,
		saver:      saver,
		clock:      RealClock(),
		quiet:      DefaultQuietPeriod,
		log:        logrus.WithField("component", "autosave"),
		reporter:   NewReporter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("document_id", documentID)

	initialSnap := NewSnapshot(documentID, initial, 0)
	e.tracker = NewDirtyTracker(initialSnap)
	e.persisted = initialSnap.Content
	e.idle = make(chan struct{})
	close(e.idle)
	e.debouncer = NewDebouncer(e.quiet, e.clock, e.fire)
	for _, l := range e.pendingListeners {
		e.reporter.Subscribe(l)
	}
	e.pendingListeners = nil
	return e
}

// DocumentID 返回引擎绑定的文档。
func (e *Engine) DocumentID() string { return e.documentID }

// Subscribe 订阅状态变化。
func (e *Engine) Subscribe(l Listener) { e.reporter.Subscribe(l) }

// Status 返回当前保存状态。
func (e *Engine) Status() Status { return e.reporter.Status() }

// Err 返回使引擎停止保存的致命错误。
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

// Dirty 报告是否存在未持久化的修改。
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Dirty()
}

// Latest 返回最新快照。
func (e *Engine) Latest() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Latest()
}

// LastAttempt 返回最近完成的保存尝试。
func (e *Engine) LastAttempt() (Attempt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Attempt{}, false
	}
	return *e.last, true
}

// Edit 用下一个逻辑序号给内容打上时间戳并提交。
func (e *Engine) Edit(content json.RawMessage) (Snapshot, error) {
	defer e.reporter.Flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := NewSnapshot(e.documentID, content, e.seq+1)
	return snap, e.onEditLocked(snap)
}

// OnEdit 记录编辑器产生的快照并重新开始防抖计时。
// 比当前快照旧的快照被忽略。引擎关闭后返回 ErrClosed，致命错误后返回该错误。
func (e *Engine) OnEdit(s Snapshot) error {
	defer e.reporter.Flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onEditLocked(s)
}

func (e *Engine) onEditLocked(s Snapshot) error {
	if e.closed {
		return ErrClosed
	}
	if e.fatal != nil {
		return e.fatal
	}
	if s.DocumentID != e.documentID {
		return fmt.Errorf("%w: %s", ErrDocumentMismatch, s.DocumentID)
	}
	if s.ProducedAt > e.seq {
		e.seq = s.ProducedAt
	}
	if !e.tracker.OnEdit(s) {
		e.log.WithField("produced_at", s.ProducedAt).Debug("Stale snapshot dropped")
		return nil
	}
	e.reporter.EditObserved()
	e.debouncer.Notify()
	return nil
}

// Retry 立即派发保存 (如果有未保存的修改且没有保存在进行中)，
// 用于客户端的手动重试。
func (e *Engine) Retry() error {
	defer e.reporter.Flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.fatal != nil {
		return e.fatal
	}
	e.debouncer.Cancel()
	e.dispatchLocked()
	return nil
}

// Close 取消尚未触发的防抖定时器，引擎不再接受编辑。
// 已派发的保存会在后台完成，但其结果不再通知订阅者。可以重复调用。
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.debouncer.Stop()
	e.log.WithField("dirty", e.tracker.Dirty()).Debug("Autosave engine closed")
}

// Wait 阻塞直到没有保存在进行中。
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsaved 等待进行中的保存结束后，返回仍未持久化的最新快照。
// 致命错误后返回 false，因为这些内容已无处可写。
func (e *Engine) Unsaved(ctx context.Context) (Snapshot, bool, error) {
	if err := e.Wait(ctx); err != nil {
		return Snapshot{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fatal != nil || !e.tracker.Dirty() {
		return Snapshot{}, false, nil
	}
	latest := e.tracker.Latest()
	if e.persisted != nil && latest.SameContent(e.persisted) {
		return Snapshot{}, false, nil
	}
	return latest, true, nil
}

// fire 是防抖回调。
func (e *Engine) fire() {
	defer e.reporter.Flush()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatchLocked()
}

func (e *Engine) dispatchLocked() {
	if e.closed || e.fatal != nil || e.inFlight != nil || !e.tracker.Dirty() {
		return
	}
	snap := e.tracker.Latest()
	if e.persisted != nil && snap.SameContent(e.persisted) {
		// 内容回到了上次保存的样子，不需要写
		e.tracker.OnSaveSucceeded(snap)
		e.reporter.Settled()
		return
	}

	e.attempts++
	attempt := &Attempt{ID: e.attempts, Snapshot: snap, Outcome: OutcomePending}
	e.inFlight = attempt
	e.idle = make(chan struct{})
	e.reporter.Dispatched(attempt.ID)
	e.log.WithFields(logrus.Fields{
		"attempt_id":  attempt.ID,
		"produced_at": snap.ProducedAt,
	}).Debug("Dispatching save")

	go e.persist(attempt)
}

// persist 在自己的 goroutine 中执行保存，不受引擎关闭影响。
func (e *Engine) persist(attempt *Attempt) {
	err := e.saver.Save(context.Background(), e.documentID, attempt.Snapshot.Content)

	e.mu.Lock()
	idle := e.idle
	e.completeLocked(attempt, err)
	e.mu.Unlock()

	// 状态更新并投递给订阅者之后才唤醒 Wait
	e.reporter.Flush()
	close(idle)
}

func (e *Engine) completeLocked(attempt *Attempt, err error) {
	e.inFlight = nil
	logCtx := e.log.WithField("attempt_id", attempt.ID)

	if err == nil {
		attempt.Outcome = OutcomeSucceeded
		e.persisted = attempt.Snapshot.Content
		e.tracker.OnSaveSucceeded(attempt.Snapshot)
	} else {
		attempt.Outcome = OutcomeFailed
		attempt.Err = err
		e.persisted = nil
		e.tracker.OnSaveFailed()
	}
	e.last = attempt

	if e.closed {
		logCtx.WithError(err).Debug("Save completed after close, result dropped")
		return
	}

	switch {
	case err == nil:
		dirty := e.tracker.Dirty()
		e.reporter.Succeeded(attempt.ID, dirty)
		if dirty && !e.debouncer.Pending() {
			// 保存期间的编辑，其定时器已在保存进行中时到期
			e.debouncer.Notify()
		}
		logCtx.WithField("still_dirty", dirty).Debug("Save succeeded")

	case IsFatal(err):
		e.fatal = err
		e.debouncer.Stop()
		e.reporter.Fatal(attempt.ID, err)
		logCtx.WithError(err).Error("Save failed fatally, autosave stopped")
		if e.onFatal != nil {
			go e.onFatal(err)
		}

	default:
		e.reporter.Failed(attempt.ID)
		logCtx.WithError(err).Warn("Save failed, changes kept")
		if !errors.Is(err, ErrValidation) && !e.debouncer.Pending() {
			e.debouncer.Notify()
		}
	}
}
