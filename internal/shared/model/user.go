package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// UserStatus 账号状态
//
// 状态机：active → inactive（软删除，不可逆）。
// suspended 由外部管理流程设置，本服务只读不写。
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// User 身份记录（认证/授权的权威数据源，存于关系库）
type User struct {
	ID            string     `json:"id" db:"id"`
	Email         string     `json:"email" db:"email"`     // 全局唯一，统一小写存储
	PasswordHash  string     `json:"-" db:"password_hash"` // never expose in JSON
	Role          UserRole   `json:"role" db:"role"`
	EmailVerified bool       `json:"email_verified" db:"email_verified"`
	Status        UserStatus `json:"status" db:"status"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive 账号是否处于可用状态
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// UserPatch 身份记录的部分更新
// nil 字段表示不修改；updated_at 由存储层统一填充
type UserPatch struct {
	Email         *string
	PasswordHash  *string
	Role          *UserRole
	EmailVerified *bool
	Status        *UserStatus
	LastLoginAt   *time.Time
}
