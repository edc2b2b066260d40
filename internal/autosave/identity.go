package autosave

import (
	"context"
	"time"
)

// IdentityFunc 返回当前已认证的用户 ID。没有有效身份时 ok 为 false。
type IdentityFunc func(ctx context.Context) (userID uint, ok bool)

type userIDKey struct{}

// WithUserID 把已认证的用户 ID 放入 context，供 ContextIdentity 读取。
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// ContextIdentity 从 context 中读取 WithUserID 设置的用户 ID。
func ContextIdentity() IdentityFunc {
	return func(ctx context.Context) (uint, bool) {
		id, ok := ctx.Value(userIDKey{}).(uint)
		return id, ok && id != 0
	}
}

// SessionIdentity 用于长连接编辑会话：身份在连接时确定，token 过期后失效。
// expiresAt 为零值表示不过期。
func SessionIdentity(userID uint, expiresAt time.Time, clock Clock) IdentityFunc {
	if clock == nil {
		clock = RealClock()
	}
	return func(context.Context) (uint, bool) {
		if userID == 0 {
			return 0, false
		}
		if !expiresAt.IsZero() && !clock.Now().Before(expiresAt) {
			return 0, false
		}
		return userID, true
	}
}
