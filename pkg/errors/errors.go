package errors

import (
	"errors"
	"fmt"
)

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
)

// ========== 生命周期工作流错误类型 ==========

// ValidationError 子域名校验失败，发生在任何副作用之前，不自动重试
type ValidationError struct {
	Subdomain string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("子域名 %q 校验失败: %s", e.Subdomain, e.Reason)
}

// NewValidationError 创建校验错误
func NewValidationError(subdomain, reason string) *ValidationError {
	return &ValidationError{Subdomain: subdomain, Reason: reason}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SafetyGateAbort 下线确认不匹配，中止且零副作用
type SafetyGateAbort struct {
	Subdomain string
}

func (e *SafetyGateAbort) Error() string {
	return fmt.Sprintf("确认内容与子域名 %q 不一致，操作已中止", e.Subdomain)
}

// NewSafetyGateAbort 创建安全门中止错误
func NewSafetyGateAbort(subdomain string) *SafetyGateAbort {
	return &SafetyGateAbort{Subdomain: subdomain}
}

// IsSafetyGateAbort 判断是否为安全门中止
func IsSafetyGateAbort(err error) bool {
	var sa *SafetyGateAbort
	return errors.As(err, &sa)
}

// 哨兵错误
var (
	// ErrTenantNotFound 租户不存在（注册库或密钥记录中均未找到）
	ErrTenantNotFound = errors.New("租户不存在")

	// ErrWaitTimeout 轮询等待超时，结果未知，不可当作成功
	ErrWaitTimeout = errors.New("等待超时")

	// ErrInvalidTransition 非法的租户状态迁移
	ErrInvalidTransition = errors.New("非法的状态迁移")
)
