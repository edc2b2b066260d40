package repository

import (
	"context"
	"encoding/json"
	"time"
)

// CachedContent 是缓存的章节内容。SavedAt 是写入该内容时章节的 updated_at，
// 早于数据库中 updated_at 的缓存已过期，不能使用。
type CachedContent struct {
	Content json.RawMessage `json:"content"`
	SavedAt time.Time       `json:"saved_at"`
}

// StateRepository 定义了与编辑会话实时状态相关的操作，通常由 Redis 实现。
type StateRepository interface {
	// === Saved Content Cache ===

	// GetContentCache 获取章节最近一次保存的内容。缓存未命中返回 ErrCacheMiss。
	GetContentCache(ctx context.Context, chapterID string) (*CachedContent, error)

	// SetContentCache 缓存章节最近一次保存的内容。ttl 为 0 表示不过期。
	SetContentCache(ctx context.Context, chapterID string, entry CachedContent, ttl time.Duration) error

	// InvalidateContentCache 删除章节内容缓存。
	InvalidateContentCache(ctx context.Context, chapterID string) error

	// === Edit Lease (单会话编辑) ===

	// AcquireEditLease 尝试为会话获取章节的编辑租约。
	// 同一会话重复获取会刷新租约；被其他会话持有时返回 ErrLeaseHeld。
	AcquireEditLease(ctx context.Context, chapterID, sessionID string, ttl time.Duration) error

	// ReleaseEditLease 释放租约，仅当租约仍属于该会话时才删除。
	ReleaseEditLease(ctx context.Context, chapterID, sessionID string) error

	// === Save Status PubSub ===

	// PublishStatus 将会话的保存状态发布到章节频道。
	PublishStatus(ctx context.Context, chapterID string, payload []byte) error

	// === Rate Limiting ===

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
