package models

import (
	"time"

	"github.com/google/uuid"
)

// UserGame is the per-library ownership/playtime fact linking a
// UserLibrary to a catalog Game.
type UserGame struct {
	ID        uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LibraryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_library_game" json:"library_id"`
	GameID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_library_game" json:"game_id"`

	PlatformGameID string `json:"platform_game_id,omitempty"`

	Owned   bool       `gorm:"default:true" json:"owned"`
	OwnedAt *time.Time `json:"owned_at,omitempty"`

	TotalPlaytimeMinutes int        `gorm:"default:0" json:"total_playtime_minutes"`
	FirstPlayedAt        *time.Time `json:"first_played_at,omitempty"`
	LastPlayedAt         *time.Time `json:"last_played_at,omitempty"`

	GameStatus GameStatus `gorm:"default:unplayed" json:"game_status"`
	UserRating *int       `json:"user_rating,omitempty"`
	UserNotes  string     `json:"user_notes,omitempty"`
	IsFavorite bool       `json:"is_favorite"`

	// PlatformData is opaque, owned by the Platform Adapter that produced
	// this UserGame (e.g. Steam-specific playtime-by-game breakdowns).
	PlatformData JSONMap `gorm:"serializer:json" json:"platform_data,omitempty"`

	LastSyncedAt time.Time `json:"last_synced_at"`
}

// TableName returns the table name for the UserGame model.
func (UserGame) TableName() string {
	return "user_games"
}

// ApplyPlaytime updates TotalPlaytimeMinutes following the §4.3 invariant:
// playtime is non-decreasing unless the platform explicitly reports a
// lower value, in which case the lower value is recorded and the caller
// is told to flag the regression (no hard failure).
func (u *UserGame) ApplyPlaytime(reportedMinutes int) (regressed bool) {
	if reportedMinutes < u.TotalPlaytimeMinutes {
		regressed = true
	}
	u.TotalPlaytimeMinutes = reportedMinutes
	return regressed
}
