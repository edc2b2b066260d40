package repository

import (
	"context"

	"github.com/matheusnogalha/draft-os/internal/domain"
)

// BookRepository 定义了书籍数据的存储操作。
type BookRepository interface {
	// CreateWithChapter 在同一个事务中创建书籍及其第一个章节。
	CreateWithChapter(ctx context.Context, book *domain.Book, chapter *domain.Chapter) error

	// FindByID 根据 ID 查找书籍。不存在时返回 ErrBookNotFound。
	FindByID(ctx context.Context, id string) (*domain.Book, error)

	// ListByOwner 返回用户的所有书籍，按 updated_at 降序排列。
	ListByOwner(ctx context.Context, userID uint) ([]domain.Book, error)
}
