package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_RegistryMetadata(t *testing.T) {
	tests := []struct {
		kind      Kind
		status    int
		severity  Severity
		category  Category
		retryable bool
		facing    bool
		level     slog.Level
	}{
		{KindNotFound, 404, SeverityLow, CategoryResource, false, true, slog.LevelInfo},
		{KindProfileNotFound, 404, SeverityMedium, CategoryResource, false, true, slog.LevelWarn},
		{KindEmailAlreadyExists, 409, SeverityLow, CategoryUser, false, true, slog.LevelInfo},
		{KindAccountAlreadyDeleted, 410, SeverityLow, CategoryUser, false, true, slog.LevelInfo},
		{KindAccountInactive, 403, SeverityMedium, CategoryBusiness, false, true, slog.LevelWarn},
		{KindResourceAccessDenied, 403, SeverityMedium, CategoryAuthorization, false, true, slog.LevelWarn},
		{KindFieldRequired, 400, SeverityLow, CategoryValidation, false, true, slog.LevelInfo},
		{KindQueryFailed, 500, SeverityHigh, CategoryDatabase, true, false, slog.LevelError},
		{KindTimeout, 504, SeverityHigh, CategoryNetwork, true, false, slog.LevelError},
		{KindRateLimited, 429, SeverityLow, CategoryRateLimit, true, true, slog.LevelWarn},
		{KindInternal, 500, SeverityCritical, CategorySystem, false, false, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := Classify(tt.kind, "msg")
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, tt.facing, e.UserFacing)
			assert.Equal(t, tt.level, e.LogLevel)
			assert.NotEmpty(t, e.UserMessage)
		})
	}
}

func TestClassify_UnregisteredKindFallsBack(t *testing.T) {
	e := Classify(Kind("bogus.kind"), "should not pass through")

	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, 500, e.Status)
	assert.Equal(t, SeverityCritical, e.Severity)
	require.NotNil(t, e.Context)
	assert.Equal(t, "bogus.kind", e.Context["unregistered_kind"])
}

func TestClassify_EmptyMessageDefaultsToKind(t *testing.T) {
	e := Classify(KindNotFound, "")
	assert.Equal(t, string(KindNotFound), e.Message)
}

func TestDefaultAction(t *testing.T) {
	tests := []struct {
		kind   Kind
		action Action
	}{
		{KindInvalidCredentials, ActionLoginRequired},
		{KindFieldRequired, ActionCorrectInput},
		{KindQueryFailed, ActionRetry},
		{KindTimeout, ActionRetry},
		{KindRateLimited, ActionWaitAndRetry},
		{KindInternal, ActionContactSupport},
		{KindNotFound, ActionNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.action, Classify(tt.kind, "").Action)
		})
	}

	// ratelimit 类别自带默认重试等待
	assert.Equal(t, 60*time.Second, Classify(KindRateLimited, "").RetryAfter)
	assert.Zero(t, Classify(KindTimeout, "").RetryAfter)
}

func TestWrap_NoDoubleWrapping(t *testing.T) {
	inner := Classify(KindNotFound, "user not found")
	outer := Wrap(fmt.Errorf("service call: %w", inner), "outer message")

	// 已分类的错误原样透传，分类不被 internal 覆盖
	assert.Equal(t, KindNotFound, outer.Kind)
	assert.Equal(t, 404, outer.Status)
	assert.Equal(t, "user not found", outer.Message)
}

func TestWrap_PlainError(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(cause, "dial profile store")

	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "dial profile store", e.Message)
	assert.ErrorIs(t, e, cause)
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestFrom(t *testing.T) {
	classified := Classify(KindAccountInactive, "inactive")
	assert.Equal(t, KindAccountInactive, From(classified).Kind)
	assert.Equal(t, KindAccountInactive, From(fmt.Errorf("wrapped: %w", classified)).Kind)
	assert.Equal(t, KindInternal, From(errors.New("raw")).Kind)
}

func TestErrorsIs_MatchesByKind(t *testing.T) {
	a := Classify(KindEmailAlreadyExists, "a")
	b := Classify(KindEmailAlreadyExists, "b")
	c := Classify(KindNotFound, "c")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestWithContext(t *testing.T) {
	e := Classify(KindNotFound, "user not found").
		WithContext("user_id", "usr-123").
		WithContext("attempt", 2)

	assert.Equal(t, "usr-123", e.Context["user_id"])
	assert.Equal(t, 2, e.Context["attempt"])
}

func TestWithCause_RecordsCauseInContext(t *testing.T) {
	cause := errors.New("i/o timeout")
	e := Classify(KindTimeout, "profile fetch").WithCause(cause)

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "i/o timeout", e.Context["cause"])
	assert.Contains(t, e.Error(), "i/o timeout")
}

func TestUserSafeView_StripsInternals(t *testing.T) {
	e := Classify(KindQueryFailed, "pg: deadlock detected on users table").
		WithCause(errors.New("SQLSTATE 40P01")).
		WithContext("user_id", "usr-123").
		WithContext("query", "UPDATE users SET ...")

	view := e.UserSafeView()
	data, err := json.Marshal(view)
	require.NoError(t, err)

	body := string(data)
	assert.NotContains(t, body, "deadlock")
	assert.NotContains(t, body, "SQLSTATE")
	assert.NotContains(t, body, "usr-123")
	assert.NotContains(t, body, "UPDATE")

	assert.Equal(t, "database.queryFailed", view.Kind)
	assert.True(t, view.Retryable)
	assert.Equal(t, string(ActionRetry), view.Action)
	assert.NotEmpty(t, view.Message)
}

func TestUserSafeView_RetryAfterSeconds(t *testing.T) {
	view := Classify(KindRateLimited, "").UserSafeView()
	assert.Equal(t, 60, view.RetryAfter)

	// 非限流错误不带 retry_after 字段
	data, err := json.Marshal(Classify(KindNotFound, "").UserSafeView())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "retry_after")
}

func TestWithOverrides(t *testing.T) {
	e := Classify(KindNotFound, "").
		WithUserMessage("No such user.").
		WithAction(ActionContactSupport).
		WithRetryAfter(5 * time.Second)

	view := e.UserSafeView()
	assert.Equal(t, "No such user.", view.Message)
	assert.Equal(t, string(ActionContactSupport), view.Action)
	assert.Equal(t, 5, view.RetryAfter)
}
