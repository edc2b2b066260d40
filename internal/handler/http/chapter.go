package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/service"
)

// ChapterHandler 处理章节相关的请求
type ChapterHandler struct {
	chapterService *service.ChapterService
	saver          autosave.Saver // 身份从请求 context 中读取 (autosave.ContextIdentity)
}

// NewChapterHandler 创建 ChapterHandler 实例
func NewChapterHandler(chapterService *service.ChapterService, saver autosave.Saver) *ChapterHandler {
	if chapterService == nil {
		panic("ChapterService cannot be nil for ChapterHandler")
	}
	if saver == nil {
		panic("Saver cannot be nil for ChapterHandler")
	}
	return &ChapterHandler{chapterService: chapterService, saver: saver}
}

// CreateChapterRequest 定义创建章节的请求
type CreateChapterRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// ChapterResponse 是章节及其内容
type ChapterResponse struct {
	*domain.Chapter
	Content json.RawMessage `json:"content,omitempty"`
}

// SaveContentRequest 是一次性保存的请求体
type SaveContentRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

// CreateChapter 处理 POST /api/books/:bookId/chapters
func (h *ChapterHandler) CreateChapter(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		return
	}
	bookID := c.Param("bookId")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "book_id": bookID})

	var req CreateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateChapter: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: title required")
		return
	}

	chapter, err := h.chapterService.CreateChapter(c.Request.Context(), userID, bookID, req.Title)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.CreateChapter: Failed to create chapter")
		HandleServiceError(c, err)
		return
	}
	logCtx.WithField("chapter_id", chapter.ID).Info("Handler.CreateChapter: Chapter created")
	SuccessResponse(c, http.StatusCreated, chapter)
}

// ListChapters 处理 GET /api/books/:bookId/chapters
func (h *ChapterHandler) ListChapters(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		return
	}
	chapters, err := h.chapterService.ListChapters(c.Request.Context(), userID, c.Param("bookId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"chapters": chapters})
}

// GetChapter 处理 GET /api/chapters/:chapterId
func (h *ChapterHandler) GetChapter(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		return
	}
	chapter, err := h.chapterService.GetChapter(c.Request.Context(), userID, c.Param("chapterId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, ChapterResponse{Chapter: chapter, Content: chapter.RawContent()})
}

// SaveContent 处理 PUT /api/chapters/:chapterId/content，与编辑会话使用同一条保存路径
func (h *ChapterHandler) SaveContent(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		return
	}
	chapterID := c.Param("chapterId")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "chapter_id": chapterID})

	var req SaveContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.SaveContent: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: content required")
		return
	}

	ctx := autosave.WithUserID(c.Request.Context(), userID)
	if err := h.saver.Save(ctx, chapterID, req.Content); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"status": string(autosave.StatusSaved)})
}
