package autosave

import (
	"sync"
	"time"
)

// DefaultQuietPeriod 是最后一次编辑后到触发保存之间的默认静默期。
const DefaultQuietPeriod = 2 * time.Second

// Debouncer 是后沿防抖器：每次 Notify 都会重新开始计时，
// 静默期内没有新的 Notify 时调用一次 fn。
type Debouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	clock   Clock
	fn      func()
	timer   Timer
	gen     uint64 // 每次 Notify/Cancel 递增，过期的回调据此忽略
	stopped bool
}

// NewDebouncer 创建防抖器。quiet <= 0 时使用 DefaultQuietPeriod，clock 为 nil 时使用真实时钟。
func NewDebouncer(quiet time.Duration, clock Clock, fn func()) *Debouncer {
	if fn == nil {
		panic("debounce callback cannot be nil")
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{quiet: quiet, clock: clock, fn: fn}
}

// Notify 取消尚未触发的定时器并重新开始计时。Stop 之后调用无效。
func (d *Debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.cancelLocked()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.quiet, func() { d.fire(gen) })
}

// Pending 报告是否有尚未触发的定时器。
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel 取消尚未触发的定时器，防抖器仍可继续使用。
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop 取消定时器并永久停用防抖器。
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

// QuietPeriod 返回静默期长度。
func (d *Debouncer) QuietPeriod() time.Duration { return d.quiet }

func (d *Debouncer) cancelLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		// 定时器在 Stop 之前已经触发
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}
