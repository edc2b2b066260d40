package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/matheusnogalha/draft-os/internal/domain"
)

// BookRepository 是 repository.BookRepository 的 mock
type BookRepository struct {
	mock.Mock
}

// CreateWithChapter provides a mock function with given fields: ctx, book, chapter
func (_m *BookRepository) CreateWithChapter(ctx context.Context, book *domain.Book, chapter *domain.Chapter) error {
	ret := _m.Called(ctx, book, chapter)
	return ret.Error(0)
}

// FindByID provides a mock function with given fields: ctx, id
func (_m *BookRepository) FindByID(ctx context.Context, id string) (*domain.Book, error) {
	ret := _m.Called(ctx, id)

	var r0 *domain.Book
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*domain.Book)
	}
	return r0, ret.Error(1)
}

// ListByOwner provides a mock function with given fields: ctx, userID
func (_m *BookRepository) ListByOwner(ctx context.Context, userID uint) ([]domain.Book, error) {
	ret := _m.Called(ctx, userID)

	var r0 []domain.Book
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.Book)
	}
	return r0, ret.Error(1)
}
