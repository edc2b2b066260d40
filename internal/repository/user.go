package repository

import (
	"context"

	"github.com/matheusnogalha/draft-os/internal/domain"
)

// UserRepository 存取作者账号。查找不到时返回 ErrUserNotFound。
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	// FindByEmail 按小写邮箱查找
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// Save 在 ID 为零值时创建账号，否则更新。
	// 用户名或邮箱冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, user *domain.User) error
}
