package gormpersistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/repository"
)

// GormChapterRepository 是 ChapterRepository 接口的 GORM 实现。
// 所有权通过 chapters JOIN books 在数据库中检查。
type GormChapterRepository struct {
	db *gorm.DB
}

// NewGormChapterRepository 创建 GormChapterRepository 实例
func NewGormChapterRepository(db *gorm.DB) *GormChapterRepository {
	if db == nil {
		panic("database connection cannot be nil for GormChapterRepository")
	}
	return &GormChapterRepository{db: db}
}

// chapterOwner 是所有权查询的结果行
type chapterOwner struct {
	BookID    string
	UserID    uint
	UpdatedAt time.Time
}

// ownerOf 查询章节所属的书籍和用户
func ownerOf(tx *gorm.DB, chapterID string) (*chapterOwner, error) {
	var row chapterOwner
	err := tx.Table("chapters").
		Select("chapters.book_id AS book_id, books.user_id AS user_id, chapters.updated_at AS updated_at").
		Joins("JOIN books ON books.id = chapters.book_id").
		Where("chapters.id = ?", chapterID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrChapterNotFound
		}
		return nil, fmt.Errorf("gorm: find owner of chapter %s: %w", chapterID, err)
	}
	return &row, nil
}

// ownedBook 检查书籍存在且属于 ownerID
func ownedBook(tx *gorm.DB, ownerID uint, bookID string) (*domain.Book, error) {
	var book domain.Book
	err := tx.Where("id = ?", bookID).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrBookNotFound
		}
		return nil, fmt.Errorf("gorm: find book by id %s: %w", bookID, err)
	}
	if book.UserID != ownerID {
		return nil, repository.ErrForbidden
	}
	return &book, nil
}

// Create 在书籍末尾追加章节，Position 取当前最大值加一
func (r *GormChapterRepository) Create(ctx context.Context, ownerID uint, chapter *domain.Chapter) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ownedBook(tx, ownerID, chapter.BookID); err != nil {
			return err
		}
		var maxPos sql.NullInt64
		if err := tx.Model(&domain.Chapter{}).
			Where("book_id = ?", chapter.BookID).
			Select("MAX(position)").
			Row().Scan(&maxPos); err != nil {
			return fmt.Errorf("gorm: find last chapter position of book %s: %w", chapter.BookID, err)
		}
		if maxPos.Valid {
			chapter.Position = int(maxPos.Int64) + 1
		}
		if err := tx.Create(chapter).Error; err != nil {
			if isDuplicateEntryError(err) {
				return repository.ErrDuplicateEntry
			}
			return fmt.Errorf("gorm: create chapter in book %s: %w", chapter.BookID, err)
		}
		return nil
	})
}

// FindOwned 查找属于 ownerID 的章节
func (r *GormChapterRepository) FindOwned(ctx context.Context, ownerID uint, chapterID string) (*domain.Chapter, error) {
	db := r.db.WithContext(ctx)
	owner, err := ownerOf(db, chapterID)
	if err != nil {
		return nil, err
	}
	if owner.UserID != ownerID {
		return nil, repository.ErrForbidden
	}

	var chapter domain.Chapter
	if err := db.Where("id = ?", chapterID).First(&chapter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrChapterNotFound
		}
		return nil, fmt.Errorf("gorm: find chapter by id %s: %w", chapterID, err)
	}
	return &chapter, nil
}

// CheckOwner 只通过 JOIN 查询检查所有权，不读取章节内容
func (r *GormChapterRepository) CheckOwner(ctx context.Context, ownerID uint, chapterID string) (time.Time, error) {
	owner, err := ownerOf(r.db.WithContext(ctx), chapterID)
	if err != nil {
		return time.Time{}, err
	}
	if owner.UserID != ownerID {
		return time.Time{}, repository.ErrForbidden
	}
	return owner.UpdatedAt, nil
}

// ListByBook 按 position 升序列出书籍的章节
func (r *GormChapterRepository) ListByBook(ctx context.Context, ownerID uint, bookID string) ([]domain.Chapter, error) {
	db := r.db.WithContext(ctx)
	if _, err := ownedBook(db, ownerID, bookID); err != nil {
		return nil, err
	}
	var chapters []domain.Chapter
	err := db.Where("book_id = ?", bookID).
		Order("position ASC").Order("created_at ASC").
		Find(&chapters).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list chapters of book %s: %w", bookID, err)
	}
	return chapters, nil
}

// UpdateContent 在一个事务中写入章节内容，并更新所属书籍的 updated_at。
// 所有权在同一事务中检查，写入条件也带上了所有者。
func (r *GormChapterRepository) UpdateContent(ctx context.Context, ownerID uint, chapterID string, content json.RawMessage, at time.Time) error {
	if !json.Valid(content) {
		return repository.ErrInvalidContent
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := ownerOf(tx, chapterID)
		if err != nil {
			return err
		}
		if owner.UserID != ownerID {
			return repository.ErrForbidden
		}

		ownedBooks := tx.Session(&gorm.Session{NewDB: true}).
			Model(&domain.Book{}).Select("id").Where("user_id = ?", ownerID)
		// MySQL 在值未变化时 RowsAffected 为 0，这里不能用它判断章节是否存在
		err = tx.Model(&domain.Chapter{}).
			Where("id = ? AND book_id IN (?)", chapterID, ownedBooks).
			Updates(map[string]interface{}{"content": string(content), "updated_at": at}).Error
		if err != nil {
			return fmt.Errorf("gorm: update content of chapter %s: %w", chapterID, err)
		}

		if err := tx.Model(&domain.Book{}).
			Where("id = ?", owner.BookID).
			Update("updated_at", at).Error; err != nil {
			return fmt.Errorf("gorm: touch book %s: %w", owner.BookID, err)
		}
		return nil
	})
}
