// Package account 账号生命周期服务
//
// 创建与软删除跨越两个存储库，但两库之间没有共享事务：
// 身份库写入是账号存在性与安全状态的持久化边界，资料库写入
// 是尽力而为的补充。本服务不做跨库回滚，失败语义见各方法注释。
package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"user-admin/internal/shared/apperr"
	"user-admin/internal/shared/cache"
	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"
	"user-admin/pkg/logging"
)

// 删除账号时写入资料文档的匿名化占位值
const DeletedMarker = "[DELETED]"

// DeletedDisplayName 匿名化后的展示名，保留 ID 前 8 位便于排查
func DeletedDisplayName(userID string) string {
	if len(userID) > 8 {
		userID = userID[:8]
	}
	return "[DELETED_USER_" + userID + "]"
}

// Service 账号生命周期服务
type Service struct {
	identities storage.IdentityStore
	profiles   storage.ProfileStore
	log        *logging.Logger

	// sessions 非 nil 时，删号会顺带撤销该用户的全部刷新会话
	sessions cache.SessionCache

	// 生命周期计数器，可为 nil
	created prometheus.Counter
	deleted prometheus.Counter
}

// NewService 创建账号生命周期服务
func NewService(identities storage.IdentityStore, profiles storage.ProfileStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Default("account-service")
	}
	return &Service{identities: identities, profiles: profiles, log: log}
}

// WithSessionCache 注册会话缓存，用于删号时撤销刷新令牌
func (s *Service) WithSessionCache(c cache.SessionCache) *Service {
	s.sessions = c
	return s
}

// WithLifecycleCounters 注册创建/删除计数器
func (s *Service) WithLifecycleCounters(created, deleted prometheus.Counter) *Service {
	s.created = created
	s.deleted = deleted
	return s
}

// CreateAccountInput 注册输入
type CreateAccountInput struct {
	Email     string
	Password  string
	Role      model.UserRole
	FirstName string
	LastName  string
}

// classifyStoreErr 存储适配层失败的统一分类
func classifyStoreErr(err error, message, userID string) *apperr.Error {
	kind := apperr.KindInternal
	if errors.Is(err, context.DeadlineExceeded) {
		kind = apperr.KindTimeout
	}
	e := apperr.Classify(kind, message).WithCause(err)
	if userID != "" {
		e = e.WithContext("user_id", userID)
	}
	return e
}

// newUserID 生成用户 ID
func newUserID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "usr-" + hex.EncodeToString(b)
}

// CreateAccount 注册新账号
//
// 流程：邮箱查重 → 写身份记录（权威）→ 写资料文档（尽力而为）。
// 资料写入失败时不回滚身份记录 — 两库之间没有事务，失败以
// system.internal 上报，由调用方决定补偿动作。
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (*model.ComposedUserView, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperr.Classify(apperr.KindFieldRequired, "email is required").WithContext("field", "email")
	}
	if input.Password == "" {
		return nil, apperr.Classify(apperr.KindFieldRequired, "password is required").WithContext("field", "password")
	}

	existing, err := s.identities.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, classifyStoreErr(err, "check email uniqueness", "")
	}
	if existing != nil {
		return nil, apperr.Classify(apperr.KindEmailAlreadyExists, "email already registered").
			WithContext("email", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(err, "hash password")
	}

	role := input.Role
	if role == "" {
		role = model.UserRoleUser
	}

	now := time.Now().UTC()
	identity := &model.User{
		ID:            newUserID(),
		Email:         email,
		PasswordHash:  string(hash),
		Role:          role,
		EmailVerified: false,
		Status:        model.UserStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.identities.CreateUser(ctx, identity); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// 查重与写入之间被并发注册抢先
			return nil, apperr.Classify(apperr.KindEmailAlreadyExists, "email already registered").
				WithContext("email", email)
		}
		return nil, classifyStoreErr(err, "create identity record", identity.ID)
	}

	profile := model.NewProfile(identity.ID, email, input.FirstName, input.LastName, now)
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		// 身份记录已落库且不回滚：账号存在但资料缺失，读路径会降级
		s.log.Error("profile creation failed after identity write",
			"user_id", identity.ID, "error", err.Error())
		return nil, apperr.Classify(apperr.KindInternal, "create profile record").
			WithCause(err).
			WithContext("user_id", identity.ID)
	}

	if s.created != nil {
		s.created.Inc()
	}
	s.log.Info("account created", "user_id", identity.ID, "role", string(role))
	return model.ComposeUserView(identity, profile), nil
}

// DeleteAccount 软删除账号
//
// 身份记录置为 inactive 是权威步骤：它一旦成功，账号即视为已删除。
// 之后的资料匿名化和会话撤销都是尽力而为，失败只记日志不上报。
// 两个库都不做物理删除。
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	identity, err := s.identities.GetUserByID(ctx, id)
	if err != nil {
		return classifyStoreErr(err, "load identity record", id)
	}
	if identity == nil {
		return apperr.Classify(apperr.KindNotFound, "user not found").WithContext("user_id", id)
	}
	switch identity.Status {
	case model.UserStatusActive:
		// 可删除
	case model.UserStatusInactive:
		return apperr.Classify(apperr.KindAccountAlreadyDeleted, "account already deleted").
			WithContext("user_id", id)
	default:
		// suspended 等状态由外部管理流程掌控，不允许本服务删除
		return apperr.Classify(apperr.KindResourceAccessDenied, "account status forbids deletion").
			WithContext("user_id", id).
			WithContext("status", string(identity.Status))
	}

	status := model.UserStatusInactive
	if err := s.identities.UpdateUser(ctx, id, &model.UserPatch{Status: &status}); err != nil {
		return classifyStoreErr(err, "deactivate identity record", id)
	}

	s.anonymizeProfile(ctx, id)

	if s.sessions != nil {
		if err := s.sessions.DeleteUserSessions(ctx, id); err != nil {
			s.log.Warn("session revocation failed", "user_id", id, "error", err.Error())
		}
	}

	if s.deleted != nil {
		s.deleted.Inc()
	}
	s.log.Info("account deleted", "user_id", id)
	return nil
}

// anonymizeProfile 覆写资料文档中的 PII，失败只记日志
func (s *Service) anonymizeProfile(ctx context.Context, id string) {
	update := storage.ProfileUpdate{
		Set: map[string]interface{}{
			"profile.first_name":                     DeletedMarker,
			"profile.last_name":                      DeletedMarker,
			"profile.display_name":                   DeletedDisplayName(id),
			"preferences.privacy.profile_visibility": "private",
			"preferences.privacy.show_email":         false,
			"preferences.privacy.show_location":      false,
		},
		Unset: []string{
			"profile.bio",
			"profile.location",
			"profile.website",
			"profile.date_of_birth",
			"profile.avatar",
			"social",
		},
	}

	updated, err := s.profiles.UpdateProfile(ctx, id, update)
	if err != nil {
		s.log.Warn("profile anonymization failed", "user_id", id, "error", err.Error())
		return
	}
	if updated == nil {
		s.log.Warn("profile anonymization skipped: no profile document", "user_id", id)
	}
}
