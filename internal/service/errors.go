package service

import (
	"errors"

	"github.com/matheusnogalha/draft-os/internal/repository"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternalServer       = errors.New("internal server error")

	ErrBookNotFound    = errors.New("book not found")
	ErrChapterNotFound = errors.New("chapter not found")
	ErrForbidden       = errors.New("access to this resource is forbidden")
	ErrInvalidContent  = errors.New("invalid chapter content")
	// ErrEditSessionActive 表示章节已被另一个编辑会话打开
	ErrEditSessionActive = errors.New("chapter is already open in another editing session")
)

// mapRepoError 将仓库层的错误映射到服务层定义的错误。
// notFound 是当前操作中 "记录不存在" 对应的业务错误。
func mapRepoError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, repository.ErrInvalidContent):
		return ErrInvalidContent
	case errors.Is(err, repository.ErrLeaseHeld):
		return ErrEditSessionActive
	default:
		return ErrInternalServer
	}
}
