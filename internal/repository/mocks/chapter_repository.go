package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/matheusnogalha/draft-os/internal/domain"
)

// ChapterRepository 是 repository.ChapterRepository 的 mock
type ChapterRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, ownerID, chapter
func (_m *ChapterRepository) Create(ctx context.Context, ownerID uint, chapter *domain.Chapter) error {
	ret := _m.Called(ctx, ownerID, chapter)
	return ret.Error(0)
}

// FindOwned provides a mock function with given fields: ctx, ownerID, chapterID
func (_m *ChapterRepository) FindOwned(ctx context.Context, ownerID uint, chapterID string) (*domain.Chapter, error) {
	ret := _m.Called(ctx, ownerID, chapterID)

	var r0 *domain.Chapter
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*domain.Chapter)
	}
	return r0, ret.Error(1)
}

// CheckOwner provides a mock function with given fields: ctx, ownerID, chapterID
func (_m *ChapterRepository) CheckOwner(ctx context.Context, ownerID uint, chapterID string) (time.Time, error) {
	ret := _m.Called(ctx, ownerID, chapterID)

	var r0 time.Time
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(time.Time)
	}
	return r0, ret.Error(1)
}

// ListByBook provides a mock function with given fields: ctx, ownerID, bookID
func (_m *ChapterRepository) ListByBook(ctx context.Context, ownerID uint, bookID string) ([]domain.Chapter, error) {
	ret := _m.Called(ctx, ownerID, bookID)

	var r0 []domain.Chapter
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.Chapter)
	}
	return r0, ret.Error(1)
}

// UpdateContent provides a mock function with given fields: ctx, ownerID, chapterID, content, at
func (_m *ChapterRepository) UpdateContent(ctx context.Context, ownerID uint, chapterID string, content json.RawMessage, at time.Time) error {
	ret := _m.Called(ctx, ownerID, chapterID, content, at)
	return ret.Error(0)
}
