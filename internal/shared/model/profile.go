package model

import "time"

// Profile 用户资料文档（展示数据，存于 MongoDB，user_id 与身份记录 1:1）
//
// Email 是身份记录的反规范化副本，仅在创建时写入，之后不做同步，
// 可能与身份库中的邮箱漂移 — 展示层一律以身份记录为准，此字段只作参考。
type Profile struct {
	UserID      string            `bson:"_id" json:"user_id"`
	Email       string            `bson:"email" json:"email"`
	Profile     ProfileFields     `bson:"profile" json:"profile"`
	Preferences Preferences       `bson:"preferences" json:"preferences"`
	Social      map[string]string `bson:"social,omitempty" json:"social,omitempty"`
	Metadata    ProfileMetadata   `bson:"metadata" json:"metadata"`
}

// ProfileFields 展示字段
type ProfileFields struct {
	FirstName   string     `bson:"first_name" json:"first_name"`
	LastName    string     `bson:"last_name" json:"last_name"`
	DisplayName string     `bson:"display_name" json:"display_name"`
	Bio         string     `bson:"bio,omitempty" json:"bio,omitempty"`
	Location    string     `bson:"location,omitempty" json:"location,omitempty"`
	Website     string     `bson:"website,omitempty" json:"website,omitempty"`
	DateOfBirth *time.Time `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"`
	Avatar      *Avatar    `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

// Avatar 头像对象
// 显式的 null（而非字段缺失）表示头像已被移除
type Avatar struct {
	URL         string    `bson:"url" json:"url"`
	ContentType string    `bson:"content_type,omitempty" json:"content_type,omitempty"`
	UploadedAt  time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// Preferences 用户偏好
type Preferences struct {
	Language      string        `bson:"language" json:"language"`
	Theme         string        `bson:"theme" json:"theme"` // light | dark | system
	Notifications Notifications `bson:"notifications" json:"notifications"`
	Privacy       Privacy       `bson:"privacy" json:"privacy"`
}

// Notifications 通知开关
type Notifications struct {
	Email bool `bson:"email" json:"email"`
	Push  bool `bson:"push" json:"push"`
	SMS   bool `bson:"sms" json:"sms"`
}

// Privacy 隐私设置
type Privacy struct {
	ProfileVisibility string `bson:"profile_visibility" json:"profile_visibility"` // public | private
	ShowEmail         bool   `bson:"show_email" json:"show_email"`
	ShowLocation      bool   `bson:"show_location" json:"show_location"`
}

// ProfileMetadata 文档元数据
// Version 每次成功更新严格 +1（由存储层 $inc 保证），用于检测丢失更新
type ProfileMetadata struct {
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	Version   int64     `bson:"version" json:"version"`
}

// DefaultPreferences 新建资料时的偏好默认值
func DefaultPreferences() Preferences {
	return Preferences{
		Language: "en",
		Theme:    "system",
		Notifications: Notifications{
			Email: true,
			Push:  true,
			SMS:   false,
		},
		Privacy: Privacy{
			ProfileVisibility: "public",
			ShowEmail:         false,
			ShowLocation:      false,
		},
	}
}

// NewProfile 创建初始资料文档
func NewProfile(userID, email, firstName, lastName string, now time.Time) *Profile {
	displayName := firstName
	if lastName != "" {
		displayName = firstName + " " + lastName
	}
	return &Profile{
		UserID: userID,
		Email:  email,
		Profile: ProfileFields{
			FirstName:   firstName,
			LastName:    lastName,
			DisplayName: displayName,
		},
		Preferences: DefaultPreferences(),
		Metadata: ProfileMetadata{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
	}
}
