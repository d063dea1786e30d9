package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform is an immutable catalog row describing one external gaming
// platform this system knows how to sync from (e.g. Steam).
type Platform struct {
	ID           uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	Code         string    `gorm:"uniqueIndex;not null" json:"code"` // lowercase, e.g. "steam"
	Name         string    `gorm:"not null" json:"name"`
	APIAvailable bool      `json:"api_available"`
	IconURL      string    `json:"icon_url,omitempty"`
	BaseURL      string    `json:"base_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for the Platform model.
func (Platform) TableName() string {
	return "platforms"
}
