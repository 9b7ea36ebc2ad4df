package models

import "time"

// UserRole controls mutation capabilities. Moderators may edit and delete
// any comment; members only create.
type UserRole string

const (
	RoleMember    UserRole = "member"
	RoleModerator UserRole = "moderator"
)

// UserModel represents a registered community member.
type UserModel struct {
	Base
	Username      string     `json:"username"        gorm:"uniqueIndex;not null"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar"`
	Password      string     `json:"-"               gorm:"not null"`
	Mail          string     `json:"mail"`
	Role          UserRole   `json:"role"            gorm:"default:member;index"`
	LastLoginTime *time.Time `json:"last_login_time"`
	LastLoginIP   string     `json:"last_login_ip"`
	APITokens     []APIToken `json:"api_tokens,omitempty" gorm:"foreignKey:UserID"`
}

func (UserModel) TableName() string { return "users" }

// IsModerator reports whether the user holds the moderator capability.
func (u *UserModel) IsModerator() bool { return u.Role == RoleModerator }

// APIToken represents a personal API token for programmatic access.
type APIToken struct {
	Base
	UserID    string     `json:"-"          gorm:"index;not null"`
	Token     string     `json:"token"      gorm:"uniqueIndex;not null"`
	Name      string     `json:"name"`
	ExpiredAt *time.Time `json:"expired_at"`
}

func (APIToken) TableName() string { return "api_tokens" }

// UserSession tracks signed-in JWT sessions for device/session management.
type UserSession struct {
	Base
	UserID    string     `json:"user_id"    gorm:"index;not null"`
	IP        string     `json:"ip"`
	UA        string     `json:"ua"         gorm:"type:text"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	RevokedAt *time.Time `json:"revoked_at" gorm:"index"`
}

func (UserSession) TableName() string { return "user_sessions" }
