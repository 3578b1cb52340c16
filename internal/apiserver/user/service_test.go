package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"user-admin/internal/shared/apperr"
	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestService 构造带内存双库的聚合服务
func newTestService() (*Service, *storage.MockIdentityStore, *storage.MockProfileStore) {
	identities := storage.NewMockIdentityStore()
	profiles := storage.NewMockProfileStore()
	return NewService(identities, profiles, nil), identities, profiles
}

// seedUser 写入一对身份记录 + 资料文档
func seedUser(t *testing.T, identities *storage.MockIdentityStore, profiles *storage.MockProfileStore, id, email string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, identities.CreateUser(ctx, &model.User{
		ID:        id,
		Email:     email,
		Role:      model.UserRoleUser,
		Status:    model.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, profiles.CreateProfile(ctx, model.NewProfile(id, email, "Ada", "Lovelace", now)))
}

// requireKind 断言错误属于指定分类
func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	ae := apperr.From(err)
	require.Equal(t, kind, ae.Kind, "unexpected error kind: %v", err)
}

// ============================================================================
// GetComposedView
// ============================================================================

func TestGetComposedView(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")

	view, err := s.GetComposedView(context.Background(), "usr-0001")
	require.NoError(t, err)

	assert.Equal(t, "usr-0001", view.ID)
	assert.Equal(t, "ada@example.com", view.Email)
	assert.Equal(t, "Ada Lovelace", view.Name)
	assert.Equal(t, model.UserRoleUser, view.Role)
	assert.Equal(t, model.UserStatusActive, view.Status)
	require.NotNil(t, view.Preferences)
	assert.Equal(t, "system", view.Preferences.Theme)
	assert.Equal(t, "en", view.Preferences.Language)
	assert.True(t, view.Preferences.EmailNotifications)
	assert.Empty(t, view.Avatar)
}

func TestGetComposedView_Idempotent(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")

	first, err := s.GetComposedView(context.Background(), "usr-0001")
	require.NoError(t, err)
	second, err := s.GetComposedView(context.Background(), "usr-0001")
	require.NoError(t, err)

	// 无写入间隔的两次读取必须逐字节一致
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGetComposedView_NotFound(t *testing.T) {
	s, _, _ := newTestService()

	_, err := s.GetComposedView(context.Background(), "usr-missing")
	requireKind(t, err, apperr.KindNotFound)
	assert.Equal(t, 404, apperr.From(err).Status)
}

func TestGetComposedView_Inactive(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")

	status := model.UserStatusInactive
	require.NoError(t, identities.UpdateUser(context.Background(), "usr-0001", &model.UserPatch{Status: &status}))

	_, err := s.GetComposedView(context.Background(), "usr-0001")
	requireKind(t, err, apperr.KindAccountInactive)
}

func TestGetComposedView_ProfileMissing(t *testing.T) {
	s, identities, _ := newTestService()
	now := time.Now().UTC()
	require.NoError(t, identities.CreateUser(context.Background(), &model.User{
		ID: "usr-solo", Email: "solo@example.com",
		Role: model.UserRoleUser, Status: model.UserStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}))

	_, err := s.GetComposedView(context.Background(), "usr-solo")
	requireKind(t, err, apperr.KindProfileNotFound)
}

func TestGetComposedView_StoreFailure(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")
	profiles.GetErr = errors.New("connection reset")

	_, err := s.GetComposedView(context.Background(), "usr-0001")
	requireKind(t, err, apperr.KindInternal)
	// 内部细节不得出现在用户安全视图中
	safe := apperr.From(err).UserSafeView()
	assert.NotContains(t, safe.Message, "connection reset")
}

// ============================================================================
// ApplyPatch
// ============================================================================

func TestApplyPatch_VersionMonotonic(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")
	ctx := context.Background()

	before, err := profiles.GetProfileByUserID(ctx, "usr-0001")
	require.NoError(t, err)

	// N 次成功更新后 version 严格等于初始值 + N，与更新内容无关
	bio := "mathematician"
	theme := "dark"
	patches := []*model.ProfilePatch{
		{Bio: &bio},
		{Theme: &theme},
		{}, // 空 patch 一样计入版本
	}
	for _, p := range patches {
		_, err := s.ApplyPatch(ctx, "usr-0001", p)
		require.NoError(t, err)
	}

	after, err := profiles.GetProfileByUserID(ctx, "usr-0001")
	require.NoError(t, err)
	assert.Equal(t, before.Metadata.Version+int64(len(patches)), after.Metadata.Version)
}

func TestApplyPatch_NameSplitting(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")
	ctx := context.Background()

	name := "Grace Brewster Hopper"
	view, err := s.ApplyPatch(ctx, "usr-0001", &model.ProfilePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Grace Brewster Hopper", view.Name)

	p, err := profiles.GetProfileByUserID(ctx, "usr-0001")
	require.NoError(t, err)
	assert.Equal(t, "Grace", p.Profile.FirstName)
	assert.Equal(t, "Brewster Hopper", p.Profile.LastName)
	assert.Equal(t, "Grace Brewster Hopper", p.Profile.DisplayName)
}

func TestApplyPatch_AvatarRemoval(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")
	ctx := context.Background()

	url := "https://cdn.example.com/a.png"
	view, err := s.ApplyPatch(ctx, "usr-0001", &model.ProfilePatch{Avatar: &url})
	require.NoError(t, err)
	assert.Equal(t, url, view.Avatar)

	// 空字符串移除头像：视图中不再出现，文档中为显式 null
	empty := ""
	view, err = s.ApplyPatch(ctx, "usr-0001", &model.ProfilePatch{Avatar: &empty})
	require.NoError(t, err)
	assert.Empty(t, view.Avatar)

	p, err := profiles.GetProfileByUserID(ctx, "usr-0001")
	require.NoError(t, err)
	assert.Nil(t, p.Profile.Avatar)
}

func TestApplyPatch_PartialPreferences(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")
	ctx := context.Background()

	// 只改 theme，其余偏好保持默认值不被覆盖
	theme := "dark"
	_, err := s.ApplyPatch(ctx, "usr-0001", &model.ProfilePatch{Theme: &theme})
	require.NoError(t, err)

	p, err := profiles.GetProfileByUserID(ctx, "usr-0001")
	require.NoError(t, err)
	assert.Equal(t, "dark", p.Preferences.Theme)
	assert.Equal(t, "en", p.Preferences.Language)
	assert.True(t, p.Preferences.Notifications.Email)
}

func TestApplyPatch_Preconditions(t *testing.T) {
	s, identities, profiles := newTestService()
	seedUser(t, identities, profiles, "usr-0001", "ada@example.com")
	ctx := context.Background()
	bio := "x"

	_, err := s.ApplyPatch(ctx, "usr-missing", &model.ProfilePatch{Bio: &bio})
	requireKind(t, err, apperr.KindNotFound)

	status := model.UserStatusSuspended
	require.NoError(t, identities.UpdateUser(ctx, "usr-0001", &model.UserPatch{Status: &status}))
	_, err = s.ApplyPatch(ctx, "usr-0001", &model.ProfilePatch{Bio: &bio})
	requireKind(t, err, apperr.KindAccountInactive)
}

// ============================================================================
// BuildProfileUpdate 映射规则
// ============================================================================

func TestBuildProfileUpdate(t *testing.T) {
	name := "Ada Lovelace"
	bio := "first programmer"
	avatar := "https://cdn.example.com/a.png"
	empty := ""
	push := false

	t.Run("name splits into components", func(t *testing.T) {
		u := BuildProfileUpdate(&model.ProfilePatch{Name: &name})
		assert.Equal(t, "Ada Lovelace", u.Set["profile.display_name"])
		assert.Equal(t, "Ada", u.Set["profile.first_name"])
		assert.Equal(t, "Lovelace", u.Set["profile.last_name"])
	})

	t.Run("single-token name leaves last_name empty", func(t *testing.T) {
		mono := "Plato"
		u := BuildProfileUpdate(&model.ProfilePatch{Name: &mono})
		assert.Equal(t, "Plato", u.Set["profile.first_name"])
		assert.Equal(t, "", u.Set["profile.last_name"])
	})

	t.Run("avatar url becomes structured object", func(t *testing.T) {
		u := BuildProfileUpdate(&model.ProfilePatch{Avatar: &avatar})
		a, ok := u.Set["profile.avatar"].(*model.Avatar)
		require.True(t, ok)
		assert.Equal(t, avatar, a.URL)
	})

	t.Run("empty avatar writes explicit null", func(t *testing.T) {
		u := BuildProfileUpdate(&model.ProfilePatch{Avatar: &empty})
		v, present := u.Set["profile.avatar"]
		require.True(t, present, "explicit null must be present, not absent")
		assert.Nil(t, v)
	})

	t.Run("preferences map to dotted paths", func(t *testing.T) {
		u := BuildProfileUpdate(&model.ProfilePatch{Bio: &bio, PushNotifications: &push})
		assert.Equal(t, bio, u.Set["profile.bio"])
		assert.Equal(t, false, u.Set["preferences.notifications.push"])
		assert.NotContains(t, u.Set, "preferences.theme")
	})

	t.Run("social entries map per key", func(t *testing.T) {
		u := BuildProfileUpdate(&model.ProfilePatch{Social: map[string]string{"github": "ada"}})
		assert.Equal(t, "ada", u.Set["social.github"])
	})
}

// ============================================================================
// ListComposedViews
// ============================================================================

func TestListComposedViews_PartialFailure(t *testing.T) {
	s, identities, profiles := newTestService()
	for i := 1; i <= 3; i++ {
		seedUser(t, identities, profiles,
			fmt.Sprintf("usr-%04d", i), fmt.Sprintf("u%d@example.com", i))
	}
	// 强制其中一行的资料读取失败
	profiles.GetErrByID = map[string]error{"usr-0002": errors.New("socket timeout")}

	page, err := s.ListComposedViews(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3, "single-row failure must not drop rows")

	errored := 0
	for _, v := range page.Items {
		if v.Name == model.DisplayNameError {
			errored++
			assert.Equal(t, "usr-0002", v.ID)
		}
	}
	assert.Equal(t, 1, errored)
}

func TestListComposedViews_MissingProfile(t *testing.T) {
	s, identities, _ := newTestService()
	now := time.Now().UTC()
	require.NoError(t, identities.CreateUser(context.Background(), &model.User{
		ID: "usr-solo", Email: "solo@example.com",
		Role: model.UserRoleUser, Status: model.UserStatusActive,
		CreatedAt: now, UpdatedAt: now,
	}))

	page, err := s.ListComposedViews(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	// 无资料与资料读取失败使用不同的占位值
	assert.Equal(t, model.DisplayNameMissing, page.Items[0].Name)
}

func TestListComposedViews_Clamping(t *testing.T) {
	s, identities, profiles := newTestService()
	for i := 1; i <= 5; i++ {
		seedUser(t, identities, profiles,
			fmt.Sprintf("usr-%04d", i), fmt.Sprintf("u%d@example.com", i))
	}

	clamped, err := s.ListComposedViews(context.Background(), 0, 500)
	require.NoError(t, err)
	normal, err := s.ListComposedViews(context.Background(), 1, 100)
	require.NoError(t, err)

	// 越界参数与钳制后的等价调用行为一致，响应回显实际生效值
	assert.Equal(t, normal, clamped)
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, 100, clamped.Limit)
}

func TestListComposedViews_Empty(t *testing.T) {
	s, _, _ := newTestService()

	page, err := s.ListComposedViews(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 0, page.TotalPages)
}

func TestListComposedViews_TotalPages(t *testing.T) {
	s, identities, profiles := newTestService()
	for i := 1; i <= 5; i++ {
		seedUser(t, identities, profiles,
			fmt.Sprintf("usr-%04d", i), fmt.Sprintf("u%d@example.com", i))
	}

	page, err := s.ListComposedViews(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 2)
}
