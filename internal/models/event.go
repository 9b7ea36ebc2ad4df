package models

import "time"

// Event is a community event; it owns a comment thread.
type Event struct {
	Base
	Title       string     `json:"title"       gorm:"not null"`
	Slug        string     `json:"slug"        gorm:"uniqueIndex;not null"`
	Description string     `json:"description" gorm:"type:text"`
	StartAt     *time.Time `json:"start_at"    gorm:"index"`
	EndAt       *time.Time `json:"end_at"`
	Location    string     `json:"location"`
}

func (Event) TableName() string { return "events" }
