// Package storage 提供存储层抽象
//
// mock.go 提供用于测试的内存实现，支持按键注入错误，
// 用于验证 service 层在部分失败下的行为。
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"user-admin/internal/shared/model"
)

// ============================================================================
// MockIdentityStore
// ============================================================================

// MockIdentityStore 内存身份存储
type MockIdentityStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	order []string // 插入顺序，列表按此排序

	// 错误注入：非 nil 时对应操作直接返回该错误
	CreateErr error
	GetErr    error
	UpdateErr error
	ListErr   error
}

// NewMockIdentityStore 创建内存身份存储
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{users: map[string]*model.User{}}
}

var _ IdentityStore = (*MockIdentityStore)(nil)

func copyUser(u *model.User) *model.User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

func (s *MockIdentityStore) CreateUser(ctx context.Context, user *model.User) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return ErrDuplicate
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}
	s.users[user.ID] = copyUser(user)
	s.order = append(s.order, user.ID)
	return nil
}

func (s *MockIdentityStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *MockIdentityStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (s *MockIdentityStore) UpdateUser(ctx context.Context, id string, patch *model.UserPatch) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Email != nil {
		u.Email = strings.ToLower(*patch.Email)
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.EmailVerified != nil {
		u.EmailVerified = *patch.EmailVerified
	}
	if patch.Status != nil {
		u.Status = *patch.Status
	}
	if patch.LastLoginAt != nil {
		t := *patch.LastLoginAt
		u.LastLoginAt = &t
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (s *MockIdentityStore) ListUsers(ctx context.Context, offset, limit int) ([]*model.User, int, error) {
	if s.ListErr != nil {
		return nil, 0, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(s.order)
	ids := append([]string(nil), s.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.users[ids[i]].CreatedAt.After(s.users[ids[j]].CreatedAt)
	})
	if offset >= len(ids) {
		return []*model.User{}, total, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]*model.User, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, copyUser(s.users[id]))
	}
	return out, total, nil
}

// ============================================================================
// MockProfileStore
// ============================================================================

// MockProfileStore 内存资料存储
//
// UpdateProfile 解释与 mongostore 相同的点分路径子集，
// 并复刻其 version +1 / updated_at 刷新语义。
type MockProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile

	CreateErr error
	UpdateErr error
	// GetErrByID 按 userID 注入读取错误，用于列表聚合的单行失败场景
	GetErrByID map[string]error
	GetErr     error
}

// NewMockProfileStore 创建内存资料存储
func NewMockProfileStore() *MockProfileStore {
	return &MockProfileStore{profiles: map[string]*model.Profile{}}
}

var _ ProfileStore = (*MockProfileStore)(nil)

func copyProfile(p *model.Profile) *model.Profile {
	c := *p
	if p.Profile.Avatar != nil {
		a := *p.Profile.Avatar
		c.Profile.Avatar = &a
	}
	if p.Profile.DateOfBirth != nil {
		t := *p.Profile.DateOfBirth
		c.Profile.DateOfBirth = &t
	}
	if p.Social != nil {
		c.Social = map[string]string{}
		for k, v := range p.Social {
			c.Social[k] = v
		}
	}
	return &c
}

func (s *MockProfileStore) CreateProfile(ctx context.Context, profile *model.Profile) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.UserID]; ok {
		return ErrDuplicate
	}
	s.profiles[profile.UserID] = copyProfile(profile)
	return nil
}

func (s *MockProfileStore) GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if err := s.getErr(userID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return copyProfile(p), nil
}

func (s *MockProfileStore) getErr(userID string) error {
	if s.GetErr != nil {
		return s.GetErr
	}
	if s.GetErrByID != nil {
		return s.GetErrByID[userID]
	}
	return nil
}

func (s *MockProfileStore) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*model.Profile, error) {
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	for path, value := range update.Set {
		applyPath(p, path, value)
	}
	for _, path := range update.Unset {
		applyPath(p, path, nil)
	}
	// 与 mongostore 的 $inc/$currentDate 保持一致
	p.Metadata.Version++
	p.Metadata.UpdatedAt = time.Now()
	return copyProfile(p), nil
}

// applyPath 把点分路径的赋值落到结构体字段上
// 只解释 service 层实际会生成的路径
func applyPath(p *model.Profile, path string, value interface{}) {
	switch path {
	case "profile.first_name":
		p.Profile.FirstName = asString(value)
	case "profile.last_name":
		p.Profile.LastName = asString(value)
	case "profile.display_name":
		p.Profile.DisplayName = asString(value)
	case "profile.bio":
		p.Profile.Bio = asString(value)
	case "profile.location":
		p.Profile.Location = asString(value)
	case "profile.website":
		p.Profile.Website = asString(value)
	case "profile.date_of_birth":
		p.Profile.DateOfBirth = nil
	case "profile.avatar":
		if a, ok := value.(*model.Avatar); ok {
			p.Profile.Avatar = a
		} else {
			p.Profile.Avatar = nil // 显式 null 与 unset 在内存实现中同型
		}
	case "preferences.theme":
		p.Preferences.Theme = asString(value)
	case "preferences.language":
		p.Preferences.Language = asString(value)
	case "preferences.notifications.email":
		p.Preferences.Notifications.Email = asBool(value)
	case "preferences.notifications.push":
		p.Preferences.Notifications.Push = asBool(value)
	case "preferences.notifications.sms":
		p.Preferences.Notifications.SMS = asBool(value)
	case "preferences.privacy.profile_visibility":
		p.Preferences.Privacy.ProfileVisibility = asString(value)
	case "preferences.privacy.show_email":
		p.Preferences.Privacy.ShowEmail = asBool(value)
	case "preferences.privacy.show_location":
		p.Preferences.Privacy.ShowLocation = asBool(value)
	case "social":
		if m, ok := value.(map[string]string); ok {
			p.Social = m
		} else {
			p.Social = nil
		}
	default:
		if k, ok := strings.CutPrefix(path, "social."); ok {
			if p.Social == nil {
				p.Social = map[string]string{}
			}
			if value == nil {
				delete(p.Social, k)
			} else {
				p.Social[k] = asString(value)
			}
		}
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
