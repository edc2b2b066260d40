package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultChapterTitle 是新建章节的默认标题。
const DefaultChapterTitle = "Capítulo 1"

// Chapter 表示书中的一个章节，Content 保存富文本编辑器产生的 JSON 文档树。
type Chapter struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	BookID    string    `gorm:"type:varchar(36);index;not null" json:"book_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	Content   string    `gorm:"type:longtext" json:"-"` // 原样存储，不做解析
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RawContent 返回章节内容的原始 JSON。空内容返回 nil。
func (c *Chapter) RawContent() json.RawMessage {
	if c.Content == "" {
		return nil
	}
	return json.RawMessage(c.Content)
}

// SetContent 校验并设置章节内容。内容必须是合法 JSON，但不检查其结构。
func (c *Chapter) SetContent(content json.RawMessage) error {
	if len(content) == 0 {
		c.Content = ""
		return nil
	}
	if !json.Valid(content) {
		return fmt.Errorf("chapter content is not valid JSON")
	}
	c.Content = string(content)
	return nil
}
