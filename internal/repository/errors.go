package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入或更新的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrForbidden 表示记录存在，但不属于调用者 (存储层的所有权检查失败)
	ErrForbidden = errors.New("repository: access denied")
	// ErrInvalidContent 表示存储层拒绝了内容 (例如不是合法 JSON)
	ErrInvalidContent = errors.New("repository: invalid content")
)

// 特定资源的错误 (基于通用错误)
var (
	ErrUserNotFound    = ErrNotFound
	ErrBookNotFound    = ErrNotFound
	ErrChapterNotFound = ErrNotFound
	// ErrCacheMiss 表示缓存中没有对应的 key
	ErrCacheMiss = ErrNotFound
	// ErrLeaseHeld 表示编辑租约被其他会话持有
	ErrLeaseHeld = errors.New("repository: edit lease held by another session")
)
