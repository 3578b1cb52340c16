// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 身份库实现在 repository/（方言化 SQL），资料库实现在 mongostore/
//   - 初始化时通过依赖注入传入实现
//
// 两个库之间没有共享事务边界：身份库是存在性/安全状态的权威，
// 资料库是尽力而为的展示数据补充。调用方（service 层）负责在
// 这一前提下编排多步写入。
package storage

import (
	"context"

	"user-admin/internal/shared/model"
)

// 约定："不存在"返回 (nil, nil)，与存储错误严格区分。

// IdentityStore 身份存储接口（由 repository.Store 实现）
type IdentityStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, id string, patch *model.UserPatch) error
	ListUsers(ctx context.Context, offset, limit int) ([]*model.User, int, error)
}

// ProfileUpdate 资料文档的基于路径的部分更新
//
// Set 的键是点分路径（如 "profile.display_name"、"preferences.theme"），
// 值为 nil 时写入显式 null；Unset 列出要整体移除的路径。
// 每次成功应用后存储层将 metadata.version 加 1 并刷新 metadata.updated_at。
type ProfileUpdate struct {
	Set   map[string]interface{}
	Unset []string
}

// ProfileStore 资料存储接口（由 mongostore.Store 实现）
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile *model.Profile) error
	GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error)
	// UpdateProfile 应用部分更新，返回更新后的文档；文档不存在时返回 (nil, nil)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*model.Profile, error)
}

// Stores 双库组合
type Stores struct {
	Identity IdentityStore
	Profile  ProfileStore
}
