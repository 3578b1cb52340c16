package model

// ProfilePatch 资料的扁平部分更新
//
// 指针字段为 nil 表示"未提供"，与显式零值区分：
//   - Avatar: nil = 不动；"" = 移除头像（写入显式 null）；非空 = 设置新头像
//   - 偏好字段逐项映射到文档的点分路径，不会覆盖未提交的同级字段
type ProfilePatch struct {
	Name     *string `json:"name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Location *string `json:"location,omitempty"`
	Website  *string `json:"website,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`

	Theme    *string `json:"theme,omitempty"`
	Language *string `json:"language,omitempty"`

	EmailNotifications *bool `json:"email_notifications,omitempty"`
	PushNotifications  *bool `json:"push_notifications,omitempty"`
	SMSNotifications   *bool `json:"sms_notifications,omitempty"`

	ProfileVisibility *string `json:"profile_visibility,omitempty"`
	ShowEmail         *bool   `json:"show_email,omitempty"`
	ShowLocation      *bool   `json:"show_location,omitempty"`

	Social map[string]string `json:"social,omitempty"`
}

// IsEmpty 是否没有任何待更新字段
func (p *ProfilePatch) IsEmpty() bool {
	return p.Name == nil && p.Bio == nil && p.Location == nil &&
		p.Website == nil && p.Avatar == nil &&
		p.Theme == nil && p.Language == nil &&
		p.EmailNotifications == nil && p.PushNotifications == nil && p.SMSNotifications == nil &&
		p.ProfileVisibility == nil && p.ShowEmail == nil && p.ShowLocation == nil &&
		p.Social == nil
}
