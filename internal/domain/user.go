package domain

import "time"

// User 是作者账号。用户名和邮箱都唯一，邮箱以小写存储。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(64);uniqueIndex:idx_users_username;not null" json:"username"`
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_users_email;not null" json:"email"`
	Password  string    `gorm:"type:varchar(72);not null" json:"-"` // bcrypt 哈希
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
