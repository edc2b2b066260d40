package autosave

import (
	"errors"
	"fmt"
)

// 保存结果分类
var (
	// ErrUnauthorized 表示没有有效身份，或存储层拒绝了写入 (所有权检查失败)。不会重试。
	ErrUnauthorized = errors.New("autosave: unauthorized")
	// ErrTransient 表示网络或服务故障，下一个防抖周期会用最新内容重试。
	ErrTransient = errors.New("autosave: transient failure")
	// ErrNotFound 表示文档已不存在，对当前会话是致命错误。
	ErrNotFound = errors.New("autosave: document not found")
	// ErrValidation 表示存储层拒绝了内容。
	ErrValidation = errors.New("autosave: content rejected")
)

var (
	// ErrClosed 表示引擎已关闭，不再接受编辑。
	ErrClosed = errors.New("autosave: engine closed")
	// ErrDocumentMismatch 表示快照不属于引擎绑定的文档。
	ErrDocumentMismatch = errors.New("autosave: snapshot belongs to another document")
)

// Classify 将存储层返回的错误归入四类之一。
// 已分类的错误原样返回，其余 (包括超时和取消) 一律视为 ErrTransient。
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation), errors.Is(err, ErrTransient):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}

// IsFatal 报告错误是否会终止编辑会话的保存。
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound)
}
