// Package dto 定义编辑会话 WebSocket 上传输的消息。
package dto

import "encoding/json"

// 客户端发来的消息类型
const (
	TypeEdit  = "edit"
	TypeRetry = "retry"
)

// 服务端推送的消息类型
const (
	TypeDocument = "document"
	TypeStatus   = "status"
	TypeError    = "error"
)

// ClientMessage 是客户端发来的消息。edit 消息携带编辑器的完整文档树。
type ClientMessage struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// DocumentMessage 在会话建立后发送一次，包含最近保存的内容
type DocumentMessage struct {
	Type      string          `json:"type"`
	ChapterID string          `json:"chapter_id"`
	Content   json.RawMessage `json:"content"`
	Status    string          `json:"status"`
}

// StatusMessage 推送保存状态变化
type StatusMessage struct {
	Type      string `json:"type"`
	ChapterID string `json:"chapter_id"`
	Status    string `json:"status"`
	Attempt   uint64 `json:"attempt,omitempty"`
}

// ErrorMessage 表示发送给客户端的错误。Status 为 failed 时会话随后关闭。
type ErrorMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}
