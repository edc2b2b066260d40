package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matheusnogalha/draft-os/internal/autosave"
)

// ChapterStore 让 ChapterService 作为自动保存引擎的持久化存储。
type ChapterStore struct {
	chapters *ChapterService
}

// NewChapterStore 创建 ChapterStore。
func NewChapterStore(chapters *ChapterService) *ChapterStore {
	if chapters == nil {
		panic("ChapterService cannot be nil for ChapterStore")
	}
	return &ChapterStore{chapters: chapters}
}

// PersistDocument 实现 autosave.Store，把业务错误归入自动保存的错误分类。
// 返回的错误同时包装分类和原始的业务错误。
func (s *ChapterStore) PersistDocument(ctx context.Context, userID uint, documentID string, content json.RawMessage, at time.Time) error {
	err := s.chapters.SaveContent(ctx, userID, documentID, content, at)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrChapterNotFound):
		return fmt.Errorf("%w: %w", autosave.ErrNotFound, err)
	case errors.Is(err, ErrForbidden):
		return fmt.Errorf("%w: %w", autosave.ErrUnauthorized, err)
	case errors.Is(err, ErrInvalidContent):
		return fmt.Errorf("%w: %w", autosave.ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", autosave.ErrTransient, err)
	}
}

var _ autosave.Store = (*ChapterStore)(nil)
