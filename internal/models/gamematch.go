package models

import (
	"time"

	"github.com/google/uuid"
)

// GameMatch is an undirected equivalence edge between two catalog Games
// produced by the Game Identity Resolver (§4.9). The matched game keeps
// its own identity — this is a weak reference, not a merge.
//
// Orientation convention: PrimaryGameID < MatchedGameID lexicographically,
// so the unique (primary, matched) pair never double-counts an edge
// regardless of which side the resolver encountered first.
type GameMatch struct {
	PrimaryGameID uuid.UUID   `gorm:"type:uuid;primarykey" json:"primary_game_id"`
	MatchedGameID uuid.UUID   `gorm:"type:uuid;primarykey" json:"matched_game_id"`
	Confidence    float64     `json:"confidence"`
	Method        MatchMethod `json:"method"`
	Verified      bool        `json:"verified"`
	CreatedAt     time.Time   `json:"created_at"`
}

// TableName returns the table name for the GameMatch model.
func (GameMatch) TableName() string {
	return "game_matches"
}

// Orient returns (a, b) reordered so a < b lexicographically by string
// form, matching the table's orientation convention.
func Orient(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() <= b.String() {
		return a, b
	}
	return b, a
}
