package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matheusnogalha/draft-os/internal/domain"
)

// ChapterRepository 定义了章节数据的存储操作。
// 所有带 ownerID 的方法都在存储层内完成所有权检查，而不是依赖调用者。
type ChapterRepository interface {
	// Create 在书籍末尾追加一个章节。书籍不属于 ownerID 时返回 ErrForbidden。
	Create(ctx context.Context, ownerID uint, chapter *domain.Chapter) error

	// FindOwned 查找属于 ownerID 的章节。
	// 章节不存在返回 ErrChapterNotFound，存在但不属于该用户返回 ErrForbidden。
	FindOwned(ctx context.Context, ownerID uint, chapterID string) (*domain.Chapter, error)

	// CheckOwner 只检查所有权而不读取内容，返回章节的 updated_at。错误同 FindOwned。
	CheckOwner(ctx context.Context, ownerID uint, chapterID string) (time.Time, error)

	// ListByBook 按 position 升序列出书籍的章节。
	ListByBook(ctx context.Context, ownerID uint, bookID string) ([]domain.Chapter, error)

	// UpdateContent 原子地写入章节内容和修改时间，并同步更新所属书籍的 updated_at。
	// 错误: ErrChapterNotFound, ErrForbidden, ErrInvalidContent, 或包装后的数据库错误。
	UpdateContent(ctx context.Context, ownerID uint, chapterID string, content json.RawMessage, at time.Time) error
}
