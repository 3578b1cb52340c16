// Package redis 刷新会话缓存操作
package redis

import (
	"context"
	"time"

	"user-admin/internal/shared/cache"
)

var _ cache.Cache = (*Store)(nil)

// SaveRefreshSession 保存刷新会话
// 会话 Key 的 TTL 取自 ExpiresAt，同时在用户索引集合上登记 token_id
func (s *Store) SaveRefreshSession(ctx context.Context, session *cache.RefreshSession) error {
	key := cache.KeyRefreshSession + session.TokenID
	idxKey := cache.KeyUserSessions + session.UserID

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = cache.TTLRefreshSession
	}

	data := map[string]interface{}{
		"token_id":   session.TokenID,
		"user_id":    session.UserID,
		"user_agent": session.UserAgent,
		"issued_at":  session.IssuedAt.Format(time.RFC3339Nano),
		"expires_at": session.ExpiresAt.Format(time.RFC3339Nano),
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, idxKey, session.TokenID)
	pipe.Expire(ctx, idxKey, cache.TTLRefreshSession)
	_, err := pipe.Exec(ctx)

	return err
}

// GetRefreshSession 获取刷新会话，不存在或已过期返回 (nil, nil)
func (s *Store) GetRefreshSession(ctx context.Context, tokenID string) (*cache.RefreshSession, error) {
	key := cache.KeyRefreshSession + tokenID

	result, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	session := &cache.RefreshSession{
		TokenID:   result["token_id"],
		UserID:    result["user_id"],
		UserAgent: result["user_agent"],
	}
	if t, err := time.Parse(time.RFC3339Nano, result["issued_at"]); err == nil {
		session.IssuedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, result["expires_at"]); err == nil {
		session.ExpiresAt = t
	}

	return session, nil
}

// DeleteRefreshSession 删除刷新会话
func (s *Store) DeleteRefreshSession(ctx context.Context, tokenID string) error {
	session, err := s.GetRefreshSession(ctx, tokenID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, cache.KeyRefreshSession+tokenID)
	if session != nil {
		pipe.SRem(ctx, cache.KeyUserSessions+session.UserID, tokenID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteUserSessions 撤销某用户的全部刷新会话
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	idxKey := cache.KeyUserSessions + userID

	tokenIDs, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for _, id := range tokenIDs {
		pipe.Del(ctx, cache.KeyRefreshSession+id)
	}
	pipe.Del(ctx, idxKey)
	_, err = pipe.Exec(ctx)
	return err
}
