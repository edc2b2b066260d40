package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/repository"
)

// BookService 负责书籍 (手稿) 的创建和仪表盘列表。
type BookService struct {
	bookRepo repository.BookRepository
}

// NewBookService 创建 BookService 实例。
func NewBookService(bookRepo repository.BookRepository) *BookService {
	if bookRepo == nil {
		panic("BookRepository cannot be nil for BookService")
	}
	return &BookService{bookRepo: bookRepo}
}

// CreateBook 创建一本草稿状态的新书，并同时创建它的第一个章节，编辑器总是打开某个章节。
// title 为空时使用默认标题。
func (s *BookService) CreateBook(ctx context.Context, userID uint, title string) (*domain.Book, *domain.Chapter, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "operation": "CreateBook"})

	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultBookTitle
	}
	now := time.Now().UTC()
	book := &domain.Book{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Status:    domain.BookStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	chapter := &domain.Chapter{
		ID:        uuid.NewString(),
		BookID:    book.ID,
		Title:     domain.DefaultChapterTitle,
		Position:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.bookRepo.CreateWithChapter(ctx, book, chapter); err != nil {
		logCtx.WithError(err).Error("Failed to create book")
		return nil, nil, ErrInternalServer
	}

	logCtx.WithFields(logrus.Fields{"book_id": book.ID, "chapter_id": chapter.ID}).Info("Book created")
	return book, chapter, nil
}

// ListBooks 返回用户的书籍，最近编辑的在前。
func (s *BookService) ListBooks(ctx context.Context, userID uint) ([]domain.Book, error) {
	books, err := s.bookRepo.ListByOwner(ctx, userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to list books")
		return nil, ErrInternalServer
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}
