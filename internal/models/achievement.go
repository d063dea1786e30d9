package models

import (
	"time"

	"github.com/google/uuid"
)

// Achievement is a platform-defined achievement for a catalog Game.
type Achievement struct {
	ID        uuid.UUID `gorm:"primarykey;type:uuid;column:achievement_id" json:"achievement_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GameID                uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_game_platform_achievement" json:"game_id"`
	PlatformID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_game_platform_achievement" json:"platform_id"`
	PlatformAchievementID string    `gorm:"not null;uniqueIndex:idx_game_platform_achievement" json:"platform_achievement_id"`

	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description,omitempty"`
	IconURL     string `json:"icon_url,omitempty"`
	Points      int    `gorm:"default:0" json:"points"`
	Rarity      *int   `json:"rarity,omitempty"`
	Hidden      bool   `json:"hidden"`
}

// TableName returns the table name for the Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// UserAchievement records that a specific UserGame unlocked an Achievement.
type UserAchievement struct {
	ID        uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserGameID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usergame_achievement" json:"user_game_id"`
	AchievementID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usergame_achievement" json:"achievement_id"`

	UnlockedAt      time.Time `json:"unlocked_at"`
	ProgressPercent int       `gorm:"default:0" json:"progress_percent"`
}

// TableName returns the table name for the UserAchievement model.
func (UserAchievement) TableName() string {
	return "user_achievements"
}
