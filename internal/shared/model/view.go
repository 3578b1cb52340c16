package model

import "time"

// 资料缺失/取失败时 name 字段使用的占位值
// 两者必须保持可区分：列表聚合用它们区别"无资料"和"资料读取失败"
const (
	DisplayNameMissing = "[PROFILE_MISSING]"
	DisplayNameError   = "[PROFILE_ERROR]"
)

// ViewPreferences 组合视图里的偏好摘要（扁平化子集）
type ViewPreferences struct {
	Theme              string `json:"theme"`
	Language           string `json:"language"`
	EmailNotifications bool   `json:"email_notifications"`
	Timezone           string `json:"timezone,omitempty"` // 预留，资料文档暂无此字段
}

// ComposedUserView 身份 + 资料的组合视图（派生数据，不落库）
//
// 身份字段以身份库为准；资料缺失时降级为占位 name，
// preferences/avatar 置空，视图本身仍然可返回。
type ComposedUserView struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Role        UserRole         `json:"role"`
	Status      UserStatus       `json:"status"`
	Avatar      string           `json:"avatar,omitempty"`
	Preferences *ViewPreferences `json:"preferences,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"` // 两库 updated_at 的较大值
}

// ComposeUserView 按组合规则合并身份记录与资料文档
// profile 可为 nil（降级路径）；identity 必须非 nil
func ComposeUserView(identity *User, profile *Profile) *ComposedUserView {
	view := &ComposedUserView{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      DisplayNameMissing,
		Role:      identity.Role,
		Status:    identity.Status,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	}
	if profile == nil {
		return view
	}

	view.Name = profile.Profile.DisplayName
	if profile.Profile.Avatar != nil {
		view.Avatar = profile.Profile.Avatar.URL
	}
	view.Preferences = &ViewPreferences{
		Theme:              profile.Preferences.Theme,
		Language:           profile.Preferences.Language,
		EmailNotifications: profile.Preferences.Notifications.Email,
	}
	if profile.Metadata.UpdatedAt.After(view.UpdatedAt) {
		view.UpdatedAt = profile.Metadata.UpdatedAt
	}
	return view
}

// PagedUsers 分页列表响应
type PagedUsers struct {
	Items      []*ComposedUserView `json:"items"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"total_pages"`
}
