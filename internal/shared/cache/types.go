// Package cache 缓存层类型定义
package cache

import (
	"time"
)

// RefreshSession 刷新令牌会话
//
// 访问令牌（JWT）自包含无需存储；刷新令牌以会话形式落在缓存中，
// 删除会话即撤销该刷新令牌。
type RefreshSession struct {
	TokenID   string    `json:"token_id" redis:"token_id"`
	UserID    string    `json:"user_id" redis:"user_id"`
	UserAgent string    `json:"user_agent,omitempty" redis:"user_agent"`
	IssuedAt  time.Time `json:"issued_at" redis:"issued_at"`
	ExpiresAt time.Time `json:"expires_at" redis:"expires_at"`
}

// ============================================================================
// Key 前缀和 TTL 常量
// ============================================================================

const (
	// Key 前缀
	KeyRefreshSession = "refresh_session:"
	KeyUserSessions   = "user_sessions:" // userID → 该用户全部会话 token_id 的集合

	// TTLRefreshSession 兜底 TTL，实际过期以会话 ExpiresAt 为准
	TTLRefreshSession = 7 * 24 * time.Hour
)
