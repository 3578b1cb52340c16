// Package apperr 统一业务错误分类
//
// 所有服务层错误都归入一个封闭的 Kind 注册表，每个 Kind 携带固定元数据
// （HTTP 状态码、严重级别、类别、可重试、是否面向用户、日志级别）。
// 与存储层的哨兵错误（storage.ErrNotFound 等）不同，这里的错误对象
// 直接决定 API 层的响应形态：跨越信任边界时只允许输出 UserSafeView。
package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Kind 错误种类，形如 "category.name"
type Kind string

const (
	KindNotFound             Kind = "resource.notFound"
	KindProfileNotFound      Kind = "resource.profileNotFound"
	KindAlreadyExists        Kind = "resource.alreadyExists"
	KindEmailAlreadyExists   Kind = "user.emailAlreadyExists"
	KindAccountAlreadyDeleted Kind = "user.accountAlreadyDeleted"
	KindAccountInactive      Kind = "business.accountInactive"
	KindResourceAccessDenied Kind = "authorization.resourceAccessDenied"
	KindInvalidCredentials   Kind = "authentication.invalidCredentials"
	KindTokenInvalid         Kind = "authentication.tokenInvalid"
	KindFieldRequired        Kind = "validation.fieldRequired"
	KindQueryFailed          Kind = "database.queryFailed"
	KindTimeout              Kind = "network.timeout"
	KindRateLimited          Kind = "ratelimit.exceeded"
	KindInternal             Kind = "system.internal"
)

// Severity 严重级别
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Category 错误类别，决定默认的用户建议动作
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryValidation     Category = "validation"
	CategoryUser           Category = "user"
	CategoryDatabase       Category = "database"
	CategoryExternal       Category = "external"
	CategoryRateLimit      Category = "ratelimit"
	CategoryResource       Category = "resource"
	CategoryBusiness       Category = "business"
	CategorySecurity       Category = "security"
	CategoryNetwork        Category = "network"
	CategorySystem         Category = "system"
)

// Action 建议用户执行的动作
type Action string

const (
	ActionLoginRequired Action = "LOGIN_REQUIRED"
	ActionCorrectInput  Action = "CORRECT_INPUT"
	ActionRetry         Action = "RETRY"
	ActionWaitAndRetry  Action = "WAIT_AND_RETRY"
	ActionContactSupport Action = "CONTACT_SUPPORT"
	ActionNone          Action = "NONE"
)

// rateLimitRetryAfter ratelimit 类别的默认重试等待
const rateLimitRetryAfter = 60 * time.Second

// meta 每个 Kind 的固定元数据
type meta struct {
	status      int
	severity    Severity
	category    Category
	retryable   bool
	userFacing  bool
	logLevel    slog.Level
	userMessage string
}

// registry 封闭的 Kind 注册表
// 新增错误种类必须在这里登记，传入未登记的 Kind 视为编程错误
var registry = map[Kind]meta{
	KindNotFound:              {404, SeverityLow, CategoryResource, false, true, slog.LevelInfo, "The requested resource was not found."},
	KindProfileNotFound:       {404, SeverityMedium, CategoryResource, false, true, slog.LevelWarn, "The user profile could not be found."},
	KindAlreadyExists:         {409, SeverityLow, CategoryResource, false, true, slog.LevelInfo, "The resource already exists."},
	KindEmailAlreadyExists:    {409, SeverityLow, CategoryUser, false, true, slog.LevelInfo, "An account with this email already exists."},
	KindAccountAlreadyDeleted: {410, SeverityLow, CategoryUser, false, true, slog.LevelInfo, "This account has already been deleted."},
	KindAccountInactive:       {403, SeverityMedium, CategoryBusiness, false, true, slog.LevelWarn, "This account is not active."},
	KindResourceAccessDenied:  {403, SeverityMedium, CategoryAuthorization, false, true, slog.LevelWarn, "You do not have access to this resource."},
	KindInvalidCredentials:    {401, SeverityMedium, CategoryAuthentication, false, true, slog.LevelWarn, "Invalid email or password."},
	KindTokenInvalid:          {401, SeverityMedium, CategoryAuthentication, false, true, slog.LevelWarn, "Your session is invalid or has expired."},
	KindFieldRequired:         {400, SeverityLow, CategoryValidation, false, true, slog.LevelInfo, "A required field is missing or invalid."},
	KindQueryFailed:           {500, SeverityHigh, CategoryDatabase, true, false, slog.LevelError, "A temporary storage error occurred. Please try again."},
	KindTimeout:               {504, SeverityHigh, CategoryNetwork, true, false, slog.LevelError, "The operation timed out. Please try again."},
	KindRateLimited:           {429, SeverityLow, CategoryRateLimit, true, true, slog.LevelWarn, "Too many requests. Please wait and try again."},
	KindInternal:              {500, SeverityCritical, CategorySystem, false, false, slog.LevelError, "An unexpected error occurred. Please try again later."},
}

// defaultAction 由类别推导默认动作
func defaultAction(c Category) (Action, time.Duration) {
	switch c {
	case CategoryAuthentication:
		return ActionLoginRequired, 0
	case CategoryValidation:
		return ActionCorrectInput, 0
	case CategoryDatabase, CategoryNetwork, CategoryExternal:
		return ActionRetry, 0
	case CategoryRateLimit:
		return ActionWaitAndRetry, rateLimitRetryAfter
	case CategorySystem:
		return ActionContactSupport, 0
	default:
		return ActionNone, 0
	}
}

// Error 分类后的业务错误
type Error struct {
	Kind       Kind
	Status     int
	Severity   Severity
	Category   Category
	Retryable  bool
	UserFacing bool
	LogLevel   slog.Level

	Message     string                 // 面向开发者的内部消息
	UserMessage string                 // 允许透出给最终用户的消息
	Context     map[string]interface{} // 诊断上下文，绝不跨越信任边界
	Action      Action
	RetryAfter  time.Duration

	cause error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.cause
}

// Is 支持 errors.Is 按 Kind 匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithContext 附加一个诊断上下文键值
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// WithCause 附加底层错误，并把其消息留存到上下文用于诊断
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	if err != nil {
		e.WithContext("cause", err.Error())
	}
	return e
}

// WithAction 覆盖默认动作
func (e *Error) WithAction(a Action) *Error {
	e.Action = a
	return e
}

// WithRetryAfter 覆盖默认重试等待
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// WithUserMessage 覆盖注册表里的默认用户消息
func (e *Error) WithUserMessage(msg string) *Error {
	e.UserMessage = msg
	return e
}

// Classify 按注册表构造分类错误
//
// 传入未登记的 Kind 是编程错误：返回 system.internal 级别的回退错误，
// 并在上下文中记录原始 Kind，绝不静默放行。
func Classify(kind Kind, message string) *Error {
	m, ok := registry[kind]
	if !ok {
		fallback := Classify(KindInternal, fmt.Sprintf("unregistered error kind %q", kind))
		return fallback.WithContext("unregistered_kind", string(kind))
	}
	action, retryAfter := defaultAction(m.category)
	if message == "" {
		message = string(kind)
	}
	return &Error{
		Kind:        kind,
		Status:      m.status,
		Severity:    m.severity,
		Category:    m.category,
		Retryable:   m.retryable,
		UserFacing:  m.userFacing,
		LogLevel:    m.logLevel,
		Message:     message,
		UserMessage: m.userMessage,
		Action:      action,
		RetryAfter:  retryAfter,
	}
}

// Wrap 把任意底层失败包装为 system.internal
// 已经是分类错误的原样透传，保证不会二次包装
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Classify(KindInternal, message).WithCause(err)
}

// From 从任意 error 提取分类错误，非分类错误按 internal 包装
// API 层用它把 service 返回值映射为响应
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(err, "unclassified error")
}

// UserSafe 允许跨越信任边界的唯一表示
// 不携带内部消息、上下文和存储细节
type UserSafe struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	Action     string `json:"action"`
	RetryAfter int    `json:"retry_after,omitempty"` // 秒
}

// UserSafeView 生成面向最终用户的安全视图
func (e *Error) UserSafeView() UserSafe {
	return UserSafe{
		Kind:       string(e.Kind),
		Message:    e.UserMessage,
		Retryable:  e.Retryable,
		Action:     string(e.Action),
		RetryAfter: int(e.RetryAfter / time.Second),
	}
}
