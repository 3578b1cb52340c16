package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"time"

	"user-admin/internal/apiserver/account"
	"user-admin/internal/apiserver/user"
	"user-admin/internal/shared/apperr"
	"user-admin/internal/shared/cache"
	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"
)

// Handler 认证 HTTP 处理器
type Handler struct {
	accounts   *account.Service
	users      *user.Service
	identities storage.IdentityStore
	sessions   cache.SessionCache
	cfg        Config
}

// NewHandler 创建认证处理器
func NewHandler(accounts *account.Service, users *user.Service, identities storage.IdentityStore, sessions cache.SessionCache, cfg Config) *Handler {
	return &Handler{
		accounts:   accounts,
		users:      users,
		identities: identities,
		sessions:   sessions,
		cfg:        cfg,
	}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("PUT /api/v1/auth/password", h.ChangePassword)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type authResponse struct {
	User         *model.ComposedUserView `json:"user"`
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" || req.FirstName == "" {
		writeError(w, http.StatusBadRequest, "email, password, first_name are required")
		return
	}
	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	view, err := h.accounts.CreateAccount(r.Context(), account.CreateAccountInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	accessToken, refreshToken, err := h.issueTokens(r, view.ID, view.Email, string(view.Role))
	if err != nil {
		log.Printf("[auth.register] issue tokens error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User registered: %s (%s)", view.Email, view.ID)
	writeJSON(w, http.StatusCreated, authResponse{
		User:         view,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// Login 用户登录
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	identity, err := h.identities.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.login] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if identity == nil || !CheckPassword(req.Password, identity.PasswordHash) {
		// 不区分"用户不存在"和"密码错误"
		writeAppError(w, apperr.Classify(apperr.KindInvalidCredentials, "login failed"))
		return
	}
	if !identity.IsActive() {
		writeAppError(w, apperr.Classify(apperr.KindAccountInactive, "account is not active"))
		return
	}

	now := time.Now().UTC()
	if err := h.identities.UpdateUser(r.Context(), identity.ID, &model.UserPatch{LastLoginAt: &now}); err != nil {
		// 登录时间只是记账，不阻断登录
		log.Printf("[auth.login] update last_login_at error: %v", err)
	}

	accessToken, refreshToken, err := h.issueTokens(r, identity.ID, identity.Email, string(identity.Role))
	if err != nil {
		log.Printf("[auth.login] issue tokens error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	view, err := h.users.GetComposedView(r.Context(), identity.ID)
	if err != nil {
		// 资料缺失不挡登录，退回纯身份视图
		view = model.ComposeUserView(identity, nil)
	}

	log.Printf("[auth] User logged in: %s", identity.Email)
	writeJSON(w, http.StatusOK, authResponse{
		User:         view,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// Refresh 刷新访问令牌
// 刷新令牌必须在会话缓存中仍然有效，被撤销的令牌即使签名合法也拒绝
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	if err != nil || claims.Type != "refresh" {
		writeAppError(w, apperr.Classify(apperr.KindTokenInvalid, "invalid refresh token"))
		return
	}

	session, err := h.sessions.GetRefreshSession(r.Context(), claims.ID)
	if err != nil {
		log.Printf("[auth.refresh] session lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if session == nil || session.UserID != claims.Subject {
		writeAppError(w, apperr.Classify(apperr.KindTokenInvalid, "refresh session revoked"))
		return
	}

	identity, err := h.identities.GetUserByID(r.Context(), claims.Subject)
	if err != nil || identity == nil {
		writeAppError(w, apperr.Classify(apperr.KindTokenInvalid, "user no longer exists"))
		return
	}
	if !identity.IsActive() {
		writeAppError(w, apperr.Classify(apperr.KindAccountInactive, "account is not active"))
		return
	}

	accessToken, err := GenerateAccessToken(h.cfg, identity.ID, identity.Email, string(identity.Role))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": accessToken,
	})
}

// Logout 撤销刷新令牌
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	if err != nil || claims.Type != "refresh" {
		// 令牌已不可用，视为登出成功
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
		return
	}

	if err := h.sessions.DeleteRefreshSession(r.Context(), claims.ID); err != nil {
		log.Printf("[auth.logout] session delete error: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me 获取当前用户的组合视图
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	view, err := h.users.GetComposedView(r.Context(), authUser.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ChangePassword 修改密码，成功后撤销该用户全部刷新会话
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "old_password and new_password are required")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}

	identity, err := h.identities.GetUserByID(r.Context(), authUser.ID)
	if err != nil || identity == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if !CheckPassword(req.OldPassword, identity.PasswordHash) {
		writeAppError(w, apperr.Classify(apperr.KindInvalidCredentials, "incorrect old password"))
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.identities.UpdateUser(r.Context(), identity.ID, &model.UserPatch{PasswordHash: &hash}); err != nil {
		log.Printf("[auth.password] update error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	if err := h.sessions.DeleteUserSessions(r.Context(), identity.ID); err != nil {
		log.Printf("[auth.password] session revocation error: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// issueTokens 签发访问/刷新令牌并登记刷新会话
func (h *Handler) issueTokens(r *http.Request, userID, email, role string) (accessToken, refreshToken string, err error) {
	accessToken, err = GenerateAccessToken(h.cfg, userID, email, role)
	if err != nil {
		return "", "", err
	}
	refreshToken, tokenID, err := GenerateRefreshToken(h.cfg, userID)
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	err = h.sessions.SaveRefreshSession(r.Context(), &cache.RefreshSession{
		TokenID:   tokenID,
		UserID:    userID,
		UserAgent: r.UserAgent(),
		IssuedAt:  now,
		ExpiresAt: now.Add(h.cfg.RefreshTokenTTL),
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保管理员用户存在（启动时调用）
// 如果配置了 adminEmail 且数据库中不存在该用户，则自动创建
func EnsureAdminUser(accounts *account.Service, identities storage.IdentityStore, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	existing, err := identities.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		log.Printf("[auth] Admin user already exists: %s (%s)", adminEmail, existing.ID)
		return nil
	}

	view, err := accounts.CreateAccount(ctx, account.CreateAccountInput{
		Email:     adminEmail,
		Password:  adminPassword,
		Role:      model.UserRoleAdmin,
		FirstName: "Admin",
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%s)", adminEmail, view.ID)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError 把分类错误映射为 HTTP 响应，只透出用户安全视图
func writeAppError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	if ae.Status >= 500 {
		log.Printf("[auth] %v", ae)
	}
	writeJSON(w, ae.Status, map[string]interface{}{"error": ae.UserSafeView()})
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
