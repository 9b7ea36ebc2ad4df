package models

// NotificationKind distinguishes why a notification was produced.
type NotificationKind string

const (
	NotificationReply   NotificationKind = "reply"
	NotificationMention NotificationKind = "mention"
)

// Notification is produced when a comment replies to or mentions a user.
// IsRead only ever transitions false -> true.
type Notification struct {
	Base
	RecipientID string           `json:"recipient_id" gorm:"not null;index"`
	SenderID    string           `json:"sender_id"    gorm:"index"`
	CommentID   string           `json:"comment_id"   gorm:"index"`
	EventID     string           `json:"event_id"     gorm:"index"`
	Kind        NotificationKind `json:"kind"         gorm:"not null;index"`
	IsRead      bool             `json:"is_read"      gorm:"default:false;index"`
}

func (Notification) TableName() string { return "notifications" }
