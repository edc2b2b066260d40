package autosave

// DirtyTracker 保存最新快照以及 "是否有未持久化的修改" 标记。
// 它只是状态容器，不做同步，由 Engine 加锁保护。
type DirtyTracker struct {
	latest    Snapshot
	hasLatest bool
	dirty     bool
}

// NewDirtyTracker 以会话初始快照创建 tracker，初始状态为干净。
func NewDirtyTracker(initial Snapshot) *DirtyTracker {
	return &DirtyTracker{latest: initial, hasLatest: true}
}

// OnEdit 用新快照替换最新快照并标记为脏。
// 不比当前快照新的快照会被丢弃，返回 false。
func (t *DirtyTracker) OnEdit(s Snapshot) bool {
	if t.hasLatest && !s.NewerThan(t.latest) {
		return false
	}
	t.latest = s
	t.hasLatest = true
	t.dirty = true
	return true
}

// OnSaveSucceeded 只有在保存的就是最新快照时才清除脏标记。
// 保存期间到达的新编辑使 tracker 保持为脏。
func (t *DirtyTracker) OnSaveSucceeded(saved Snapshot) {
	if saved.ProducedAt == t.latest.ProducedAt {
		t.dirty = false
	}
}

// OnSaveFailed 保存失败从不清除脏标记。
func (t *DirtyTracker) OnSaveFailed() {
	t.dirty = true
}

// Dirty 报告是否存在未持久化的修改。
func (t *DirtyTracker) Dirty() bool { return t.dirty }

// Latest 返回最新快照。
func (t *DirtyTracker) Latest() Snapshot { return t.latest }
