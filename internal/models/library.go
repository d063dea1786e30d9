package models

import (
	"time"

	"github.com/google/uuid"
)

// UserLibrary is a user's connection to one external platform: it holds
// opaque credentials and tracks sync progress/state. Generalized from the
// teacher's Steam-only Library model to carry a PlatformID instead of an
// assumption of Steam.
type UserLibrary struct {
	ID        uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PlatformID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_platform_user" json:"platform_id"`
	UserIdentifier string    `gorm:"not null;uniqueIndex:idx_platform_user" json:"user_identifier"`
	DisplayName    string    `json:"display_name"`

	// Credentials is opaque to the core; the owning Platform Adapter
	// validates and interprets its shape. Never rendered to JSON.
	Credentials JSONMap `gorm:"serializer:json" json:"-"`

	SyncEnabled  bool       `gorm:"default:true" json:"sync_enabled"`
	SyncStatus   SyncStatus `gorm:"default:pending" json:"sync_status"`
	SyncError    string     `json:"sync_error,omitempty"`
	SyncPosition JSONMap    `gorm:"serializer:json" json:"sync_position,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}

// TableName returns the table name for the UserLibrary model.
func (UserLibrary) TableName() string {
	return "user_libraries"
}

// NeedsSyncCheck reports whether enough time has elapsed since the last
// sync to warrant the scheduler considering this library again.
func (l *UserLibrary) NeedsSyncCheck(interval time.Duration) bool {
	if l.LastSyncAt == nil {
		return true
	}
	return time.Since(*l.LastSyncAt) >= interval
}

// IsSyncable reports whether this library is eligible to be enqueued at
// all (enabled, and not already mid-flight).
func (l *UserLibrary) IsSyncable() bool {
	return l.SyncEnabled && l.SyncStatus != SyncStatusInProgress && l.SyncStatus != SyncStatusQueued
}
