package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"user-admin/internal/apiserver/auth"
	"user-admin/internal/shared/apperr"
	"user-admin/internal/shared/model"
	"user-admin/internal/shared/objstore"
)

// 头像上传大小上限
const maxAvatarSize = 5 << 20 // 5 MiB

// RegisterRoutes 注册用户相关路由
// 列表仅限管理员，单用户操作允许本人或管理员
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/users", auth.AdminOnly(h.ListUsers))
	mux.HandleFunc("GET /api/v1/users/{id}", auth.SelfOrAdmin(h.GetUser))
	mux.HandleFunc("PATCH /api/v1/users/{id}", auth.SelfOrAdmin(h.PatchUser))
	mux.HandleFunc("DELETE /api/v1/users/{id}", auth.SelfOrAdmin(h.DeleteUser))
	mux.HandleFunc("POST /api/v1/users/{id}/avatar", auth.SelfOrAdmin(h.UploadAvatar))
	mux.HandleFunc("GET /api/v1/users/{id}/avatar", h.GetAvatar)
	mux.HandleFunc("GET /health", h.Health)
}

// ListUsers 分页列出用户组合视图
//
// 路由: GET /api/v1/users?page=1&limit=20
//
// page/limit 越界时由 service 层钳制，响应回显实际生效值。
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page == 0 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}

	result, err := h.users.ListComposedViews(r.Context(), page, limit)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetUser 获取单个用户的组合视图
//
// 路由: GET /api/v1/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	view, err := h.users.GetComposedView(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PatchUser 部分更新用户资料
//
// 路由: PATCH /api/v1/users/{id}
// Body: {"name": "...", "bio": "...", "avatar": "", "theme": "dark", ...}
//
// 空字符串 avatar 表示移除头像。返回更新后的组合视图。
func (h *Handler) PatchUser(w http.ResponseWriter, r *http.Request) {
	var patch model.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.IsEmpty() {
		h.writeAppError(w, r, apperr.Classify(apperr.KindFieldRequired, "patch has no fields"))
		return
	}

	view, err := h.users.ApplyPatch(r.Context(), r.PathValue("id"), &patch)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteUser 软删除账号
//
// 路由: DELETE /api/v1/users/{id}
//
// 身份状态置 inactive，资料匿名化为尽力而为。成功返回 204。
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar 上传头像
//
// 路由: POST /api/v1/users/{id}/avatar
// Body: 图片二进制，Content-Type 标明类型
//
// 对象落 MinIO 后把头像 URL 写回资料文档（走常规 Patch 路径）。
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}
	id := r.PathValue("id")

	contentType := r.Header.Get("Content-Type")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxAvatarSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty avatar upload")
		return
	}
	if len(data) > maxAvatarSize {
		writeError(w, http.StatusRequestEntityTooLarge, "avatar exceeds size limit")
		return
	}

	key := objstore.AvatarKey(id)
	if err := h.objects.Upload(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		h.writeAppError(w, r, apperr.Wrap(err, "upload avatar object"))
		return
	}

	url := "/api/v1/users/" + id + "/avatar"
	view, err := h.users.ApplyPatch(r.Context(), id, &model.ProfilePatch{Avatar: &url})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetAvatar 下载头像
//
// 路由: GET /api/v1/users/{id}/avatar
func (h *Handler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	if h.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}

	obj, err := h.objects.Download(r.Context(), objstore.AvatarKey(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}
	defer obj.Close()

	w.Header().Set("Cache-Control", "private, max-age=300")
	io.Copy(w, obj)
}
