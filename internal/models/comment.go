package models

import "time"

// MaxCommentLength is the upper bound on trimmed comment content, in runes.
const MaxCommentLength = 2000

// Comment is a discussion comment attached to an event. A comment with a
// ParentID is a reply; quoted fields are immutable once set.
type Comment struct {
	Base
	EventID         string     `json:"event_id"          gorm:"not null;index"`
	AuthorID        string     `json:"author_id"         gorm:"not null;index"`
	Content         string     `json:"content"           gorm:"type:text;not null"`
	ParentID        *string    `json:"parent_comment_id" gorm:"index"`
	QuotedText      *string    `json:"quoted_text,omitempty"       gorm:"type:text"`
	QuotedCommentID *string    `json:"quoted_comment_id,omitempty" gorm:"index"`
	IsEdited        bool       `json:"is_edited"         gorm:"default:false"`
	EditedAt        *time.Time `json:"edited_at"`

	Children []Comment `json:"children,omitempty" gorm:"foreignKey:ParentID"`
}

func (Comment) TableName() string { return "comments" }

// IsRoot reports whether the comment has no parent.
func (c *Comment) IsRoot() bool { return c.ParentID == nil || *c.ParentID == "" }
