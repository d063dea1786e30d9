package models

import (
	"strings"
	"time"

	"github.com/blevesearch/go-porterstemmer"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Game is the cross-platform catalog entity: the universal representation
// of a title, shared by every UserGame that links a library to it.
type Game struct {
	ID        uuid.UUID      `gorm:"primarykey;type:uuid" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Title           string `gorm:"not null" json:"title"`
	NormalizedTitle string `gorm:"not null;index" json:"normalized_title"`
	Slug            string `gorm:"uniqueIndex" json:"slug,omitempty"`
	Description     string `json:"description,omitempty"`

	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Developer   string     `gorm:"index" json:"developer,omitempty"`
	Publisher   string     `gorm:"index" json:"publisher,omitempty"`

	Genres             StringSlice `gorm:"serializer:json" json:"genres"`
	Tags               StringSlice `gorm:"serializer:json" json:"tags"`
	PlatformsAvailable StringSlice `gorm:"serializer:json" json:"platforms_available"`

	ESRBRating      *ESRBRating `json:"esrb_rating,omitempty"`
	ESRBDescriptors StringSlice `gorm:"serializer:json" json:"esrb_descriptors"`
	PEGIRating      string      `json:"pegi_rating,omitempty"`

	MetacriticScore *int `json:"metacritic_score,omitempty"`
	SteamScore      *int `json:"steam_score,omitempty"`

	CoverImageURL string      `json:"cover_image_url,omitempty"`
	Screenshots   StringSlice `gorm:"serializer:json" json:"screenshots"`
	Videos        StringSlice `gorm:"serializer:json" json:"videos"`

	ExternalIDs ExternalIDs `gorm:"serializer:json" json:"external_ids"`

	PlaytimeMainHours          *float64 `json:"playtime_main_hours,omitempty"`
	PlaytimeCompletionistHours *float64 `json:"playtime_completionist_hours,omitempty"`

	// SearchVector is a deterministic function of
	// title|developer|publisher|description (see RebuildSearchVector);
	// never set directly from outside CS.
	SearchVector string `gorm:"column:search_vector" json:"-"`
}

// TableName returns the table name for the Game model.
func (Game) TableName() string {
	return "games"
}

// RebuildSearchVector recomputes SearchVector deterministically from
// title, developer, publisher and description (§4.3): lower-cased,
// punctuation-trimmed, Porter-stemmed tokens. Pure function of those
// fields: recomputing always yields the same result.
func (g *Game) RebuildSearchVector() {
	parts := []string{g.Title, g.Developer, g.Publisher, g.Description}
	tokens := make([]string, 0, 16)
	for _, p := range parts {
		for _, tok := range strings.Fields(strings.ToLower(p)) {
			tok = strings.Trim(tok, ".,!?:;\"'()[]{}")
			if tok == "" {
				continue
			}
			tokens = append(tokens, porterstemmer.StemString(tok))
		}
	}
	g.SearchVector = strings.Join(tokens, " ")
}

// Game carries no pricing or sale fields; pricing is not part of the
// universal Game shape (see SPEC_FULL.md §3), unlike the teacher's
// Steam-only PriceInformation.
