// Package apperror 定义了服务内统一使用的错误分类。
// 处理层（HTTP handler、通道会话）按 Code 将错误转换为响应。
package apperror

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorage            Code = "STORAGE"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeUnknownMessageType Code = "UNKNOWN_MESSAGE_TYPE"
	CodeSendFailed         Code = "SEND_FAILED"
)

// Error 携带错误分类、出错字段（仅校验错误）以及可以返回给客户端的原因描述。
// Err 保存底层错误，只用于日志。
type Error struct {
	Code   Code
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validation 返回指出具体字段的校验错误。
func Validation(field, reason string) *Error {
	return &Error{Code: CodeValidation, Field: field, Reason: reason}
}

// NotFound 返回资源不存在错误。
func NotFound(resource, id string) *Error {
	return &Error{Code: CodeNotFound, Reason: fmt.Sprintf("%s %s not found", resource, id)}
}

// Storage 包装一次持久化失败。op 描述失败的操作，不包含 SQL 细节。
func Storage(op string, err error) *Error {
	return &Error{Code: CodeStorage, Reason: op, Err: err}
}

// Unavailable 表示依赖的可选后端未配置或不可达。
func Unavailable(reason string, err error) *Error {
	return &Error{Code: CodeUnavailable, Reason: reason, Err: err}
}

// UnknownMessageType 表示通道收到了无法识别的信封类型。
func UnknownMessageType(messageType string) *Error {
	return &Error{Code: CodeUnknownMessageType, Reason: fmt.Sprintf("Unknown message type: %q", messageType)}
}

// SendFailed 表示出站信封在重试耗尽后仍发送失败。
func SendFailed(envelopeType string, err error) *Error {
	return &Error{Code: CodeSendFailed, Reason: fmt.Sprintf("failed to send %s envelope", envelopeType), Err: err}
}

// CodeOf 返回错误链中第一个 *Error 的 Code；不是分类错误时返回空字符串。
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is 判断错误链中是否包含指定分类的错误。
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// As 提取错误链中的 *Error。
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
