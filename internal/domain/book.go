package domain

import "time"

// 书籍状态
const (
	BookStatusDraft     = "draft"
	BookStatusReview    = "review"
	BookStatusPublished = "published"
)

// DefaultBookTitle 是新建书籍的默认标题。
const DefaultBookTitle = "Novo Manuscrito"

// Book 表示用户的一部手稿。
type Book struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"` // 所有者 (外键关联 User.ID)
	Title     string    `gorm:"size:255;not null" json:"title"`
	Status    string    `gorm:"size:20;not null;default:draft" json:"status"`
	CoverURL  string    `gorm:"size:512" json:"cover_url,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	// UpdatedAt 在章节内容保存时与内容一起更新，仪表盘按它排序
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

// IsValidBookStatus 检查状态值是否合法。
func IsValidBookStatus(status string) bool {
	switch status {
	case BookStatusDraft, BookStatusReview, BookStatusPublished:
		return true
	}
	return false
}
