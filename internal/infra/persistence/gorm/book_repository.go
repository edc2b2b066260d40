package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/repository"
)

// GormBookRepository 是 BookRepository 接口的 GORM 实现
type GormBookRepository struct {
	db *gorm.DB
}

// NewGormBookRepository 创建 GormBookRepository 实例
func NewGormBookRepository(db *gorm.DB) *GormBookRepository {
	if db == nil {
		panic("database connection cannot be nil for GormBookRepository")
	}
	return &GormBookRepository{db: db}
}

// CreateWithChapter 在同一个事务中创建书籍和它的第一个章节
func (r *GormBookRepository) CreateWithChapter(ctx context.Context, book *domain.Book, chapter *domain.Chapter) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(book).Error; err != nil {
			if isDuplicateEntryError(err) {
				return repository.ErrDuplicateEntry
			}
			return fmt.Errorf("gorm: create book (user: %d): %w", book.UserID, err)
		}
		chapter.BookID = book.ID
		if err := tx.Create(chapter).Error; err != nil {
			if isDuplicateEntryError(err) {
				return repository.ErrDuplicateEntry
			}
			return fmt.Errorf("gorm: create first chapter for book %s: %w", book.ID, err)
		}
		return nil
	})
}

// FindByID 实现根据 ID 查找书籍
func (r *GormBookRepository) FindByID(ctx context.Context, id string) (*domain.Book, error) {
	var book domain.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrBookNotFound
		}
		return nil, fmt.Errorf("gorm: find book by id %s: %w", id, err)
	}
	return &book, nil
}

// ListByOwner 按 updated_at 降序列出用户的书籍
func (r *GormBookRepository) ListByOwner(ctx context.Context, userID uint) ([]domain.Book, error) {
	var books []domain.Book
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list books of user %d: %w", userID, err)
	}
	return books, nil
}
