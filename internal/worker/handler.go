package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/service"
	"github.com/matheusnogalha/draft-os/internal/tasks"
)

// ChapterWriter 是刷写任务需要的章节操作，由 service.ChapterService 实现
type ChapterWriter interface {
	GetChapter(ctx context.Context, userID uint, chapterID string) (*domain.Chapter, error)
	SaveContent(ctx context.Context, userID uint, chapterID string, content json.RawMessage, at time.Time) error
}

// ChapterFlushHandler 处理章节刷写任务：写入编辑会话关闭时尚未保存的内容
type ChapterFlushHandler struct {
	chapters ChapterWriter
	now      func() time.Time
}

// NewChapterFlushHandler 创建 Handler 实例
func NewChapterFlushHandler(chapters ChapterWriter) *ChapterFlushHandler {
	if chapters == nil {
		panic("ChapterWriter cannot be nil for ChapterFlushHandler")
	}
	return &ChapterFlushHandler{chapters: chapters, now: time.Now}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ChapterFlushHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})

	payload, err := tasks.ParseChapterFlushPayload(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"chapter_id": payload.ChapterID, "user_id": payload.UserID})
	logCtx.Info("Processing chapter flush task...")

	// 1. 会话关闭后章节被其他会话保存过，内容已过时
	chapter, err := h.chapters.GetChapter(ctx, payload.UserID, payload.ChapterID)
	if err != nil {
		return h.classify(logCtx, err)
	}
	if chapter.UpdatedAt.After(payload.ClosedAt) {
		logCtx.WithFields(logrus.Fields{
			"updated_at": chapter.UpdatedAt,
			"closed_at":  payload.ClosedAt,
		}).Info("Chapter saved after session closed, flush skipped")
		return nil
	}

	// 2. 写入
	if err := h.chapters.SaveContent(ctx, payload.UserID, payload.ChapterID, payload.Content, h.now().UTC()); err != nil {
		return h.classify(logCtx, err)
	}

	logCtx.WithField("content_size", len(payload.Content)).Info("Chapter flush task processed successfully")
	return nil
}

// classify 决定任务是否重试：章节不存在、无权限或内容非法时重试也不会成功
func (h *ChapterFlushHandler) classify(logCtx *logrus.Entry, err error) error {
	switch {
	case errors.Is(err, service.ErrChapterNotFound),
		errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrInvalidContent):
		logCtx.WithError(err).Warn("Chapter flush rejected, not retrying")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		logCtx.WithError(err).Error("Chapter flush failed")
		return fmt.Errorf("chapter flush failed: %w", err)
	}
}
