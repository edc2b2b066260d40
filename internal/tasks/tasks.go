package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	// TypeChapterFlush 在编辑会话关闭时写入尚未保存的章节内容
	TypeChapterFlush = "chapter:flush"
)

// ChapterFlushPayload 定义了章节刷写任务的数据结构
type ChapterFlushPayload struct {
	ChapterID string          `json:"chapter_id"`
	UserID    uint            `json:"user_id"`
	Content   json.RawMessage `json:"content"`
	// ClosedAt 是会话关闭的时间。章节在此之后被其他会话保存过时，任务放弃写入。
	ClosedAt time.Time `json:"closed_at"`
}

// NewChapterFlushTask 创建一个新的章节刷写任务
func NewChapterFlushTask(p ChapterFlushPayload) (*asynq.Task, error) {
	if p.ChapterID == "" || p.UserID == 0 {
		return nil, fmt.Errorf("chapter flush payload requires chapter and user")
	}
	payloadBytes, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chapter flush payload: %w", err)
	}
	return asynq.NewTask(TypeChapterFlush, payloadBytes, asynq.MaxRetry(5), asynq.Queue("critical")), nil
}

// ParseChapterFlushPayload 解析章节刷写任务的 payload
func ParseChapterFlushPayload(t *asynq.Task) (ChapterFlushPayload, error) {
	var p ChapterFlushPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal chapter flush payload: %w", err)
	}
	return p, nil
}

// Enqueuer 通过 asynq 客户端提交任务
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer 创建 Enqueuer
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	if client == nil {
		panic("asynq client cannot be nil for Enqueuer")
	}
	return &Enqueuer{client: client}
}

// EnqueueChapterFlush 提交章节刷写任务
func (e *Enqueuer) EnqueueChapterFlush(ctx context.Context, p ChapterFlushPayload) error {
	task, err := NewChapterFlushTask(p)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue chapter flush for %s: %w", p.ChapterID, err)
	}
	return nil
}
