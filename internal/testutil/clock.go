// Package testutil 提供测试用的辅助工具。
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/matheusnogalha/draft-os/internal/autosave"
)

// FakeClock 是可手动推进的时钟。Advance 在调用者的 goroutine 中按时间顺序
// 同步执行到期的回调，测试因此不依赖真实时间。
//
// 并发安全：所有方法都可以从多个 goroutine 调用。
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	id    int
	at    time.Time
	fn    func()
	done  bool // 已触发或已取消
}

// NewFakeClock 创建从 start 开始的时钟。
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now 返回当前的虚拟时间。
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc 注册一个在 d 之后执行的回调。
func (c *FakeClock) AfterFunc(d time.Duration, f func()) autosave.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{clock: c, id: c.nextID, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance 把时间推进 d，并依次执行期间到期的回调。
// 回调执行时不持有时钟的锁，因此回调中可以再注册定时器。
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

// Pending 返回尚未触发也未取消的定时器数量。
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	// 清理已完成的定时器
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].id < c.timers[j].id
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(target) {
		return nil
	}
	return c.timers[0]
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}
