package user

import (
	"strings"
	"time"

	"user-admin/internal/shared/model"
	"user-admin/internal/shared/storage"
)

// BuildProfileUpdate 把扁平的 ProfilePatch 映射为资料文档的点分路径更新
//
// 映射规则是确定性的：
//   - name 同时写 display_name，并按"首个词 → first_name，其余 → last_name"拆分
//   - avatar 空字符串表示移除头像：写入显式 null，与"未提供"区分
//   - 偏好字段逐项映射到各自路径，不会覆盖未提交的同级字段
//   - social 按键逐条写入 social.<key>
func BuildProfileUpdate(patch *model.ProfilePatch) storage.ProfileUpdate {
	set := map[string]interface{}{}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		set["profile.display_name"] = name
		first, rest, _ := strings.Cut(name, " ")
		set["profile.first_name"] = first
		set["profile.last_name"] = strings.TrimSpace(rest)
	}
	if patch.Bio != nil {
		set["profile.bio"] = *patch.Bio
	}
	if patch.Location != nil {
		set["profile.location"] = *patch.Location
	}
	if patch.Website != nil {
		set["profile.website"] = *patch.Website
	}
	if patch.Avatar != nil {
		if *patch.Avatar == "" {
			set["profile.avatar"] = nil
		} else {
			set["profile.avatar"] = &model.Avatar{
				URL:         *patch.Avatar,
				ContentType: "image/unknown",
				UploadedAt:  time.Now().UTC(),
			}
		}
	}

	if patch.Theme != nil {
		set["preferences.theme"] = *patch.Theme
	}
	if patch.Language != nil {
		set["preferences.language"] = *patch.Language
	}
	if patch.EmailNotifications != nil {
		set["preferences.notifications.email"] = *patch.EmailNotifications
	}
	if patch.PushNotifications != nil {
		set["preferences.notifications.push"] = *patch.PushNotifications
	}
	if patch.SMSNotifications != nil {
		set["preferences.notifications.sms"] = *patch.SMSNotifications
	}
	if patch.ProfileVisibility != nil {
		set["preferences.privacy.profile_visibility"] = *patch.ProfileVisibility
	}
	if patch.ShowEmail != nil {
		set["preferences.privacy.show_email"] = *patch.ShowEmail
	}
	if patch.ShowLocation != nil {
		set["preferences.privacy.show_location"] = *patch.ShowLocation
	}

	for k, v := range patch.Social {
		set["social."+k] = v
	}

	return storage.ProfileUpdate{Set: set}
}
