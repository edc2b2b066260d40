package autosave

import "sync"

// Status 是展示给用户的保存状态。
type Status string

const (
	StatusSaved   Status = "saved"
	StatusSaving  Status = "saving"
	StatusUnsaved Status = "unsaved"
	// StatusFailed 只用于致命错误 (文档不存在或未授权)，之后引擎不再保存。
	// 暂时性失败仍显示为 unsaved。
	StatusFailed Status = "failed"
)

// StatusEvent 描述一次状态变化。
type StatusEvent struct {
	Status    Status
	AttemptID uint64 // 触发变化的保存尝试，编辑引起的变化为 0
	Err       error  // 仅 StatusFailed 时非空
}

// Listener 接收状态变化。它在引擎锁之外按发生顺序被调用，可以读取引擎状态。
type Listener func(StatusEvent)

// Reporter 根据编辑和保存事件维护保存状态。
// 状态变化先进入队列，由 Flush 在调用方释放自己的锁之后投递给订阅者。
type Reporter struct {
	mu         sync.RWMutex
	status     Status
	err        error
	listeners  []Listener
	queue      []StatusEvent
	delivering bool
}

// NewReporter 创建初始状态为 saved 的 Reporter。
func NewReporter() *Reporter {
	return &Reporter{status: StatusSaved}
}

// Subscribe 注册状态监听器。
func (r *Reporter) Subscribe(l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Status 返回当前状态。
func (r *Reporter) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Err 返回导致 StatusFailed 的错误。
func (r *Reporter) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// EditObserved: saved/saving -> unsaved
func (r *Reporter) EditObserved() {
	r.transition(StatusEvent{Status: StatusUnsaved})
}

// Dispatched: unsaved -> saving
func (r *Reporter) Dispatched(attemptID uint64) {
	r.transition(StatusEvent{Status: StatusSaving, AttemptID: attemptID})
}

// Succeeded: saving -> saved，保存期间有新编辑时 saving -> unsaved。
func (r *Reporter) Succeeded(attemptID uint64, stillDirty bool) {
	next := StatusSaved
	if stillDirty {
		next = StatusUnsaved
	}
	r.transition(StatusEvent{Status: next, AttemptID: attemptID})
}

// Settled 在无需保存即可确认内容已持久化时使用 (内容与上次保存的一致)。
func (r *Reporter) Settled() {
	r.transition(StatusEvent{Status: StatusSaved})
}

// Failed: saving -> unsaved。失败从不进入 saved。
func (r *Reporter) Failed(attemptID uint64) {
	r.transition(StatusEvent{Status: StatusUnsaved, AttemptID: attemptID})
}

// Fatal 进入终止状态 failed，之后的事件都被忽略。
func (r *Reporter) Fatal(attemptID uint64, err error) {
	r.transition(StatusEvent{Status: StatusFailed, AttemptID: attemptID, Err: err})
}

// Flush 把排队的状态变化按顺序投递给订阅者。
// 已有 goroutine 在投递时直接返回，新事件由它一并送出，监听器里再次触发 Flush 也不会重入。
func (r *Reporter) Flush() {
	r.mu.Lock()
	if r.delivering {
		r.mu.Unlock()
		return
	}
	r.delivering = true
	for len(r.queue) > 0 {
		batch := r.queue
		r.queue = nil
		listeners := make([]Listener, len(r.listeners))
		copy(listeners, r.listeners)
		r.mu.Unlock()

		for _, ev := range batch {
			for _, l := range listeners {
				l(ev)
			}
		}
		r.mu.Lock()
	}
	r.delivering = false
	r.mu.Unlock()
}

func (r *Reporter) transition(ev StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusFailed || r.status == ev.Status {
		return
	}
	r.status = ev.Status
	if ev.Status == StatusFailed {
		r.err = ev.Err
	}
	r.queue = append(r.queue, ev)
}
