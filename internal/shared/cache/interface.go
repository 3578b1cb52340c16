// Package cache 缓存层抽象接口
//
// 提供临时状态和缓存的存取能力，当前由 Redis 实现。
// 未配置 Redis 时退化为内存实现（单实例部署足够）。
package cache

import (
	"context"
)

// SessionCache 刷新会话缓存接口
//
// 约定："不存在"返回 (nil, nil)，与缓存错误严格区分。
type SessionCache interface {
	SaveRefreshSession(ctx context.Context, session *RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenID string) (*RefreshSession, error)
	DeleteRefreshSession(ctx context.Context, tokenID string) error
	// DeleteUserSessions 撤销某用户的全部刷新会话（删号/改密时调用）
	DeleteUserSessions(ctx context.Context, userID string) error
}

// Cache 缓存组合接口
type Cache interface {
	SessionCache
	Close() error
}
