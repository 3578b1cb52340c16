package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"
)

const userColumns = `id, email, password_hash, role, email_verified, status, last_login_at, created_at, updated_at`

// scanUser 扫描单行身份记录
func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	u := &model.User{}
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.EmailVerified,
		&u.Status, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// CreateUser 创建身份记录
// 邮箱统一小写后写入；唯一键冲突转换为 storage.ErrDuplicate
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, email, password_hash, role, email_verified, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		user.ID, strings.ToLower(user.Email), user.PasswordHash,
		user.Role, user.EmailVerified, user.Status, user.CreatedAt, user.UpdatedAt,
	)
	return wrapError(err)
}

// GetUserByID 通过 ID 查找身份记录
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = $1`), id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetUserByEmail 通过邮箱查找身份记录（大小写不敏感）
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE email = $1`), strings.ToLower(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// UpdateUser 部分更新身份记录
// 只更新 patch 中非 nil 的字段，updated_at 由数据库时间函数统一刷新。
// 记录不存在时返回 storage.ErrNotFound
func (s *Store) UpdateUser(ctx context.Context, id string, patch *model.UserPatch) error {
	sets := []string{}
	args := []interface{}{}
	n := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, n))
		args = append(args, value)
		n++
	}

	if patch.Email != nil {
		add("email", strings.ToLower(*patch.Email))
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.EmailVerified != nil {
		add("email_verified", *patch.EmailVerified)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.LastLoginAt != nil {
		add("last_login_at", *patch.LastLoginAt)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = "+s.now())
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), n)

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return wrapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListUsers 分页列出身份记录，按创建时间倒序
// 返回 (当前页记录, 总数, error)
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]*model.User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`),
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
