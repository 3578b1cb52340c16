package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"user-admin/internal/shared/apperr"
	"user-admin/internal/shared/cache"
	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService() (*Service, *storage.MockIdentityStore, *storage.MockProfileStore) {
	identities := storage.NewMockIdentityStore()
	profiles := storage.NewMockProfileStore()
	return NewService(identities, profiles, nil), identities, profiles
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.From(err).Kind, "unexpected error kind: %v", err)
}

// ============================================================================
// CreateAccount
// ============================================================================

func TestCreateAccount(t *testing.T) {
	s, identities, profiles := newTestService()
	ctx := context.Background()

	view, err := s.CreateAccount(ctx, CreateAccountInput{
		Email:     "Ada@Example.com",
		Password:  "s3cret-pass",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	// 邮箱统一小写
	assert.Equal(t, "ada@example.com", view.Email)
	assert.Equal(t, "Ada Lovelace", view.Name)
	assert.Equal(t, model.UserRoleUser, view.Role)
	assert.Equal(t, model.UserStatusActive, view.Status)

	// 身份记录：密码经 bcrypt 散列，初始未验证
	u, err := identities.GetUserByID(ctx, view.ID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.False(t, u.EmailVerified)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret-pass")))

	// 资料文档同步建立，初始版本为 1
	p, err := profiles.GetProfileByUserID(ctx, view.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1), p.Metadata.Version)
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	s, identities, _ := newTestService()
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", Password: "pw-123456"})
	require.NoError(t, err)

	// 同邮箱（含大小写变体）再注册 → 409，且身份库只有一条记录
	_, err = s.CreateAccount(ctx, CreateAccountInput{Email: "A@Example.COM", Password: "pw-123456"})
	requireKind(t, err, apperr.KindEmailAlreadyExists)
	assert.Equal(t, 409, apperr.From(err).Status)

	users, total, err := identities.ListUsers(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, users, 1)
}

func TestCreateAccount_Validation(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, CreateAccountInput{Password: "pw-123456"})
	requireKind(t, err, apperr.KindFieldRequired)

	_, err = s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com"})
	requireKind(t, err, apperr.KindFieldRequired)
}

func TestCreateAccount_ProfileWriteFails(t *testing.T) {
	s, identities, profiles := newTestService()
	ctx := context.Background()
	profiles.CreateErr = errors.New("mongo unavailable")

	_, err := s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", Password: "pw-123456"})
	requireKind(t, err, apperr.KindInternal)

	// 身份写入不回滚：账号已存在，资料缺失由读路径降级处理
	u, getErr := identities.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, getErr)
	require.NotNil(t, u)
	assert.Equal(t, model.UserStatusActive, u.Status)
}

// ============================================================================
// DeleteAccount
// ============================================================================

func TestDeleteAccount(t *testing.T) {
	s, identities, profiles := newTestService()
	ctx := context.Background()

	view, err := s.CreateAccount(ctx, CreateAccountInput{
		Email: "a@example.com", Password: "pw-123456",
		FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)

	bio := "hi"
	_, err = profiles.UpdateProfile(ctx, view.ID, storage.ProfileUpdate{
		Set: map[string]interface{}{"profile.bio": bio},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAccount(ctx, view.ID))

	// 软删除：记录还在，状态为 inactive
	u, err := identities.GetUserByID(ctx, view.ID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.UserStatusInactive, u.Status)

	// PII 被匿名化覆写，bio 清空，隐私强制收紧
	p, err := profiles.GetProfileByUserID(ctx, view.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, DeletedMarker, p.Profile.FirstName)
	assert.Equal(t, DeletedMarker, p.Profile.LastName)
	assert.Equal(t, DeletedDisplayName(view.ID), p.Profile.DisplayName)
	assert.Empty(t, p.Profile.Bio)
	assert.Nil(t, p.Profile.Avatar)
	assert.Nil(t, p.Social)
	assert.Equal(t, "private", p.Preferences.Privacy.ProfileVisibility)
	assert.False(t, p.Preferences.Privacy.ShowEmail)
}

func TestDeleteAccount_Idempotence(t *testing.T) {
	s, _, profiles := newTestService()
	ctx := context.Background()

	view, err := s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", Password: "pw-123456"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteAccount(ctx, view.ID))

	p, err := profiles.GetProfileByUserID(ctx, view.ID)
	require.NoError(t, err)
	versionAfterDelete := p.Metadata.Version

	// 重复删除 → 410，且不会重新执行匿名化副作用
	err = s.DeleteAccount(ctx, view.ID)
	requireKind(t, err, apperr.KindAccountAlreadyDeleted)
	assert.Equal(t, 410, apperr.From(err).Status)

	p, err = profiles.GetProfileByUserID(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, versionAfterDelete, p.Metadata.Version)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	s, _, _ := newTestService()
	err := s.DeleteAccount(context.Background(), "usr-missing")
	requireKind(t, err, apperr.KindNotFound)
}

func TestDeleteAccount_Suspended(t *testing.T) {
	s, identities, _ := newTestService()
	ctx := context.Background()

	view, err := s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", Password: "pw-123456"})
	require.NoError(t, err)
	status := model.UserStatusSuspended
	require.NoError(t, identities.UpdateUser(ctx, view.ID, &model.UserPatch{Status: &status}))

	err = s.DeleteAccount(ctx, view.ID)
	requireKind(t, err, apperr.KindResourceAccessDenied)
}

func TestDeleteAccount_ProfileAnonymizationBestEffort(t *testing.T) {
	s, identities, profiles := newTestService()
	ctx := context.Background()

	view, err := s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", Password: "pw-123456"})
	require.NoError(t, err)

	// 资料库故障时删除仍然成功：身份状态是唯一的权威
	profiles.UpdateErr = errors.New("mongo unavailable")
	require.NoError(t, s.DeleteAccount(ctx, view.ID))

	u, err := identities.GetUserByID(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusInactive, u.Status)
}

func TestDeleteAccount_RevokesSessions(t *testing.T) {
	identities := storage.NewMockIdentityStore()
	profiles := storage.NewMockProfileStore()
	sessions := cache.NewMemoryCache()
	s := NewService(identities, profiles, nil).WithSessionCache(sessions)
	ctx := context.Background()

	view, err := s.CreateAccount(ctx, CreateAccountInput{Email: "a@example.com", Password: "pw-123456"})
	require.NoError(t, err)

	require.NoError(t, sessions.SaveRefreshSession(ctx, &cache.RefreshSession{
		TokenID:   "tok-1",
		UserID:    view.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, s.DeleteAccount(ctx, view.ID))

	sess, err := sessions.GetRefreshSession(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestDeletedDisplayName(t *testing.T) {
	assert.Equal(t, "[DELETED_USER_usr-1234]", DeletedDisplayName("usr-1234567890"))
	assert.Equal(t, "[DELETED_USER_ab]", DeletedDisplayName("ab"))
}
