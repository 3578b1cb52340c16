// Package api 提供 HTTP API 处理器
//
// 本包实现了用户管理系统的 RESTful API，包括：
//   - 用户组合视图（身份 + 资料）查询与列表
//   - 资料部分更新（Patch）
//   - 账号软删除
//   - 头像上传/下载（MinIO）
//
// 文件组织：
//   - common.go: 通用工具函数和 Handler 定义
//   - users.go: 用户相关接口
//   - metrics.go: Prometheus 指标
package api

import (
	"encoding/json"
	"net/http"

	"user-admin/internal/apiserver/account"
	"user-admin/internal/apiserver/user"
	"user-admin/internal/shared/apperr"
	"user-admin/internal/shared/objstore"
	"user-admin/pkg/logging"
)

// Handler API 处理器
//
// Handler 是用户管理 HTTP API 的入口，负责：
//   - 路由请求到对应的处理函数
//   - 把 service 层的分类错误映射为用户安全响应
//   - 维护 Prometheus 指标
type Handler struct {
	users    *user.Service
	accounts *account.Service
	objects  *objstore.Client // 头像存储，可为 nil（未配置 MinIO）
	metrics  *Metrics
	log      *logging.Logger
}

// NewHandler 创建 Handler 实例
func NewHandler(users *user.Service, accounts *account.Service, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Default("api")
	}
	h := &Handler{users: users, accounts: accounts, log: log}
	h.metrics = NewMetrics("user_admin")
	users.WithEnrichmentCounter(h.metrics.ProfileEnrichFailures)
	accounts.WithLifecycleCounters(h.metrics.AccountsCreatedTotal, h.metrics.AccountsDeletedTotal)
	return h
}

// SetObjectStore 注册对象存储（头像上传/下载依赖）
func (h *Handler) SetObjectStore(c *objstore.Client) {
	h.objects = c
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError 把分类错误映射为 HTTP 响应
//
// 响应体只包含用户安全视图；内部消息和诊断上下文按错误自带的
// 日志级别记录在服务端，绝不跨越信任边界。
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	h.log.Logger.Log(r.Context(), ae.LogLevel, ae.Message,
		"kind", string(ae.Kind),
		"status", ae.Status,
		"path", r.URL.Path,
	)
	writeJSON(w, ae.Status, map[string]interface{}{"error": ae.UserSafeView()})
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
// 返回 {"status": "ok"} 表示服务正常运行。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
