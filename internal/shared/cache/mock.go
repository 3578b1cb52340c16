// Package cache 缓存层内存实现
package cache

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// MemoryCache - 进程内 Cache 实现（测试与无 Redis 部署）
// ============================================================================

// MemoryCache 基于 map 的内存缓存
// 过期会话在读取时惰性清理
type MemoryCache struct {
	mu       sync.Mutex
	sessions map[string]*RefreshSession
}

// NewMemoryCache 创建内存缓存实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: map[string]*RefreshSession{}}
}

var _ Cache = (*MemoryCache)(nil)

// Close 关闭缓存
func (c *MemoryCache) Close() error {
	return nil
}

func (c *MemoryCache) SaveRefreshSession(ctx context.Context, session *RefreshSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := *session
	c.sessions[session.TokenID] = &s
	return nil
}

func (c *MemoryCache) GetRefreshSession(ctx context.Context, tokenID string) (*RefreshSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[tokenID]
	if !ok {
		return nil, nil
	}
	if time.Now().After(s.ExpiresAt) {
		delete(c.sessions, tokenID)
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (c *MemoryCache) DeleteRefreshSession(ctx context.Context, tokenID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, tokenID)
	return nil
}

func (c *MemoryCache) DeleteUserSessions(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.sessions {
		if s.UserID == userID {
			delete(c.sessions, id)
		}
	}
	return nil
}
