package autosave

import (
	"bytes"
	"encoding/json"
)

// Snapshot 是某一时刻编辑器文档树的不可变副本。
// Content 由编辑器产生，引擎原样保存，从不解析。
type Snapshot struct {
	DocumentID string
	Content    json.RawMessage
	// ProducedAt 是逻辑序号，只用于判断新旧
	ProducedAt uint64
}

// NewSnapshot 复制 content 创建快照，调用者之后修改自己的切片不会影响快照。
func NewSnapshot(documentID string, content json.RawMessage, producedAt uint64) Snapshot {
	c := make(json.RawMessage, len(content))
	copy(c, content)
	return Snapshot{DocumentID: documentID, Content: c, ProducedAt: producedAt}
}

// NewerThan 报告 s 是否比 other 更新。
func (s Snapshot) NewerThan(other Snapshot) bool {
	return s.ProducedAt > other.ProducedAt
}

// SameContent 按字节比较两个快照的内容。
func (s Snapshot) SameContent(content json.RawMessage) bool {
	return bytes.Equal(s.Content, content)
}

// Outcome 是一次保存尝试的结果。
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Attempt 对应一次防抖触发产生的保存尝试。
type Attempt struct {
	ID       uint64
	Snapshot Snapshot
	Outcome  Outcome
	Err      error // Outcome 为 failed 时的原因
}
