package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/domain"
	"github.com/matheusnogalha/draft-os/internal/service"
)

// BookHandler 处理书籍 (手稿) 相关的请求
type BookHandler struct {
	bookService *service.BookService
}

// NewBookHandler 创建 BookHandler 实例
func NewBookHandler(bookService *service.BookService) *BookHandler {
	if bookService == nil {
		panic("BookService cannot be nil for BookHandler")
	}
	return &BookHandler{bookService: bookService}
}

// CreateBookRequest 定义创建书籍的请求，标题可选
type CreateBookRequest struct {
	Title string `json:"title" binding:"max=255"`
}

// CreateBookResponse 返回新书及其第一个章节，客户端随后打开该章节
type CreateBookResponse struct {
	Book    *domain.Book    `json:"book"`
	Chapter *domain.Chapter `json:"chapter"`
}

// CreateBook 处理 POST /api/books
func (h *BookHandler) CreateBook(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreateBookRequest
	// 空请求体表示使用默认标题
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logCtx.WithError(err).Warn("Handler.CreateBook: Invalid input format")
			ErrorResponse(c, http.StatusBadRequest, "Invalid input")
			return
		}
	}

	book, chapter, err := h.bookService.CreateBook(c.Request.Context(), userID, req.Title)
	if err != nil {
		logCtx.WithError(err).Error("Handler.CreateBook: Failed to create book")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("book_id", book.ID).Info("Handler.CreateBook: Book created")
	SuccessResponse(c, http.StatusCreated, CreateBookResponse{Book: book, Chapter: chapter})
}

// ListBooks 处理 GET /api/books，按最近修改排序
func (h *BookHandler) ListBooks(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		return
	}

	books, err := h.bookService.ListBooks(c.Request.Context(), userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Handler.ListBooks: Failed to list books")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"books": books})
}
