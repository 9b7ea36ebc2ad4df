package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is the base model for all entities. IDs are UUID strings so they stay
// opaque to clients and stable across the realtime channel.
type Base struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time      `json:"created"`
	UpdatedAt time.Time      `json:"modified"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}
