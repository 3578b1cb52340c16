// Package repository 数据库无关的身份存储层
//
// 通过 dbutil.Dialect 接口屏蔽不同数据库的 SQL 差异，
// 所有 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换。
// 生产环境使用 PostgreSQL，测试与轻量部署使用 SQLite。
package repository

import (
	"database/sql"
	"strings"

	"user-admin/internal/shared/storage"
	"user-admin/internal/shared/storage/dbutil"
)

// Store 身份存储实现
// 实现了 storage.IdentityStore 接口
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

// NewStore 创建身份存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// DB 返回底层数据库连接（仅用于测试）
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect 返回当前方言
func (s *Store) Dialect() dbutil.Dialect {
	return s.dialect
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// now 返回当前时间戳 SQL 表达式
func (s *Store) now() string {
	return s.dialect.CurrentTimestamp()
}

// wrapError 将驱动层错误转换为领域错误
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicateErr(err) {
		return storage.ErrDuplicate
	}
	return err
}

// isDuplicateErr 识别唯一键冲突
// PostgreSQL 报 SQLSTATE 23505（"duplicate key value"），
// SQLite 报 "UNIQUE constraint failed"
func isDuplicateErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
