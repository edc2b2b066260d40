package autosave

import "time"

// Timer 是可取消的定时器。
type Timer interface {
	// Stop 取消定时器。定时器已触发或已取消时返回 false。
	Stop() bool
}

// Clock 抽象了时间来源，测试中可以替换为可控的时钟。
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock 返回基于 time 包的时钟。
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
