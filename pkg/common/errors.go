package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType 错误类型
type ErrorType uint

const (
	// ErrorTypeNormal 普通错误
	ErrorTypeNormal ErrorType = iota
	// ErrorTypeValidation 验证错误
	ErrorTypeValidation
	// ErrorTypeForbidden 禁止访问错误
	ErrorTypeForbidden
	// ErrorTypeNotFound 未找到错误
	ErrorTypeNotFound
	// ErrorTypeInternal 内部错误
	ErrorTypeInternal
	// ErrorTypeExternal 外部服务错误
	ErrorTypeExternal
	// ErrorTypeTimeout 超时错误
	ErrorTypeTimeout
	// ErrorTypeUnavailable 服务不可用错误
	ErrorTypeUnavailable
)

// AppError 应用错误
type AppError struct {
	// Type 错误类型
	Type ErrorType
	// Code 错误代码
	Code string
	// Message 错误消息
	Message string
	// Err 原始错误
	Err error
	// Fields 相关字段
	Fields map[string]interface{}
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现errors.Unwrap接口
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode 返回对应的HTTP状态码
func (e *AppError) StatusCode() int {
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithField 添加字段信息
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// Response 生成错误响应
func (e *AppError) Response() map[string]interface{} {
	resp := map[string]interface{}{
		"code":    e.Code,
		"message": e.Message,
		"status":  e.StatusCode(),
	}
	if len(e.Fields) > 0 {
		resp["details"] = e.Fields
	}
	return resp
}

// NewAppError 创建应用错误
func NewAppError(errType ErrorType, code string, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsAppError 检查错误是否为AppError类型
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// ToAppError 将普通错误转换为AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return NewAppError(ErrorTypeNormal, "UNKNOWN", err.Error(), err)
}

// NewValidationError 创建验证错误
func NewValidationError(message string, err error) *AppError {
	return NewAppError(ErrorTypeValidation, "VALIDATION_ERROR", message, err)
}

// NewForbiddenError 创建禁止访问错误
func NewForbiddenError(message string, err error) *AppError {
	return NewAppError(ErrorTypeForbidden, "FORBIDDEN", message, err)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(ErrorTypeNotFound, "NOT_FOUND", message, err)
}

// NewInternalError 创建内部错误
func NewInternalError(message string, err error) *AppError {
	return NewAppError(ErrorTypeInternal, "INTERNAL_ERROR", message, err)
}

// NewExternalError 创建外部服务错误
func NewExternalError(message string, err error) *AppError {
	return NewAppError(ErrorTypeExternal, "EXTERNAL_ERROR", message, err)
}
