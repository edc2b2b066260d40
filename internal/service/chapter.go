package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/repository"
)

const (
	// DefaultContentCacheTTL 是已保存内容在 Redis 中的缓存时间
	DefaultContentCacheTTL = 10 * time.Minute
	// MaxContentBytes 是单个章节内容的上限
	MaxContentBytes = 5 << 20
)

// emptyDocument 是新章节的初始内容
var emptyDocument = json.RawMessage(`{"type":"doc","content":[]}`)

// ChapterService 负责章节的创建、读取和内容保存。
// 内容读取采用 "缓存优先，数据库备用，回填缓存" 策略，所有权始终在数据库中检查。
type ChapterService struct {
	chapterRepo repository.ChapterRepository
	stateRepo   repository.StateRepository
	cacheTTL    time.Duration
}

// NewChapterService 创建 ChapterService 实例。cacheTTL <= 0 时使用默认值。
func NewChapterService(chapterRepo repository.ChapterRepository, stateRepo repository.StateRepository, cacheTTL time.Duration) *ChapterService {
	if chapterRepo == nil {
		panic("ChapterRepository cannot be nil for ChapterService")
	}
	if stateRepo == nil {
		panic("StateRepository cannot be nil for ChapterService")
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultContentCacheTTL
	}
	return &ChapterService{chapterRepo: chapterRepo, stateRepo: stateRepo, cacheTTL: cacheTTL}
}

// CreateChapter 在书籍末尾追加一个空章节。
func (s *ChapterService) CreateChapter(ctx context.Context, userID uint, bookID, title string) (*domain.Chapter, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "book_id": bookID, "operation": "CreateChapter"})

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	chapter := &domain.Chapter{
		ID:      uuid.NewString(),
		BookID:  bookID,
		Title:   title,
		Content: string(emptyDocument),
	}
	if err := s.chapterRepo.Create(ctx, userID, chapter); err != nil {
		mapped := mapRepoError(err, ErrBookNotFound)
		if mapped == ErrInternalServer {
			logCtx.WithError(err).Error("Failed to create chapter")
		} else {
			logCtx.WithError(err).Warn("Chapter creation rejected")
		}
		return nil, mapped
	}
	logCtx.WithField("chapter_id", chapter.ID).Info("Chapter created")
	return chapter, nil
}

// ListChapters 按顺序列出书籍的章节。
func (s *ChapterService) ListChapters(ctx context.Context, userID uint, bookID string) ([]domain.Chapter, error) {
	chapters, err := s.chapterRepo.ListByBook(ctx, userID, bookID)
	if err != nil {
		mapped := mapRepoError(err, ErrBookNotFound)
		if mapped == ErrInternalServer {
			logrus.WithFields(logrus.Fields{"user_id": userID, "book_id": bookID}).WithError(err).Error("Failed to list chapters")
		}
		return nil, mapped
	}
	if chapters == nil {
		chapters = []domain.Chapter{}
	}
	return chapters, nil
}

// GetChapter 读取章节 (包括内容)。
func (s *ChapterService) GetChapter(ctx context.Context, userID uint, chapterID string) (*domain.Chapter, error) {
	chapter, err := s.chapterRepo.FindOwned(ctx, userID, chapterID)
	if err != nil {
		mapped := mapRepoError(err, ErrChapterNotFound)
		if mapped == ErrInternalServer {
			logrus.WithFields(logrus.Fields{"user_id": userID, "chapter_id": chapterID}).WithError(err).Error("Failed to get chapter")
		}
		return nil, mapped
	}
	return chapter, nil
}

// LoadContent 读取章节最近保存的内容，用于编辑会话启动。
// 缓存条目的 SavedAt 早于章节 updated_at 时视为过期，改读数据库。
func (s *ChapterService) LoadContent(ctx context.Context, userID uint, chapterID string) (json.RawMessage, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "chapter_id": chapterID, "operation": "LoadContent"})

	// 1. 所有权检查不读取内容，同时取得当前版本
	updatedAt, err := s.chapterRepo.CheckOwner(ctx, userID, chapterID)
	if err != nil {
		mapped := mapRepoError(err, ErrChapterNotFound)
		if mapped == ErrInternalServer {
			logCtx.WithError(err).Error("Failed to check chapter owner")
		}
		return nil, mapped
	}

	// 2. 尝试缓存
	cached, err := s.stateRepo.GetContentCache(ctx, chapterID)
	switch {
	case err == nil && !cached.SavedAt.Before(updatedAt):
		logCtx.Debug("Content cache hit")
		return cached.Content, nil
	case err == nil:
		logCtx.WithFields(logrus.Fields{"cached_at": cached.SavedAt, "updated_at": updatedAt}).Warn("Ignoring stale content cache")
	case !errors.Is(err, repository.ErrCacheMiss):
		logCtx.WithError(err).Warn("Failed to get content from cache")
	}

	// 3. 数据库读取并回填缓存，版本取读到的那一行
	chapter, err := s.GetChapter(ctx, userID, chapterID)
	if err != nil {
		return nil, err
	}
	content := chapter.RawContent()
	if content == nil {
		content = emptyDocument
	}
	entry := repository.CachedContent{Content: content, SavedAt: chapter.UpdatedAt}
	if err := s.stateRepo.SetContentCache(ctx, chapterID, entry, s.cacheTTL); err != nil {
		logCtx.WithError(err).Warn("Failed to refill content cache")
	}
	return content, nil
}

// SaveContent 写入章节内容和修改时间，成功后刷新缓存。
// 错误: ErrInvalidContent, ErrChapterNotFound, ErrForbidden, ErrInternalServer。
func (s *ChapterService) SaveContent(ctx context.Context, userID uint, chapterID string, content json.RawMessage, at time.Time) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "chapter_id": chapterID, "operation": "SaveContent"})

	if len(content) == 0 || len(content) > MaxContentBytes || !json.Valid(content) ||
		bytes.Equal(bytes.TrimSpace(content), []byte("null")) {
		logCtx.WithField("content_size", len(content)).Warn("Chapter content rejected")
		return ErrInvalidContent
	}

	// 数据库 datetime(3) 只保留毫秒，缓存版本与之对齐
	at = at.UTC().Truncate(time.Millisecond)
	if err := s.chapterRepo.UpdateContent(ctx, userID, chapterID, content, at); err != nil {
		mapped := mapRepoError(err, ErrChapterNotFound)
		if mapped == ErrInternalServer {
			logCtx.WithError(err).Error("Failed to save chapter content")
		} else {
			logCtx.WithError(err).Warn("Chapter content save rejected")
		}
		return mapped
	}

	// 缓存写失败时删除旧缓存；删除也失败时由 LoadContent 的版本比较兜底
	entry := repository.CachedContent{Content: content, SavedAt: at}
	if err := s.stateRepo.SetContentCache(ctx, chapterID, entry, s.cacheTTL); err != nil {
		logCtx.WithError(err).Warn("Failed to update content cache, invalidating")
		if err := s.stateRepo.InvalidateContentCache(ctx, chapterID); err != nil {
			logCtx.WithError(err).Error("Failed to invalidate content cache")
		}
	}
	logCtx.WithField("content_size", len(content)).Debug("Chapter content saved")
	return nil
}
