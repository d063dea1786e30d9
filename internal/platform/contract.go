// Package platform defines the uniform fetch contract every per-platform
// driver implements (§4.2), plus the shared NormalizedGame shape that the
// Catalog Store and Game Identity Resolver consume.
package platform

import "time"

// RawGame is an opaque, platform-specific representation of one game as
// returned by FetchBatch, before Transform maps it onto NormalizedGame.
type RawGame map[string]interface{}

// NormalizedGame is the universal shape a platform's Transform produces.
type NormalizedGame struct {
	PlatformCode   string
	PlatformGameID string

	Title     string
	Developer string
	Publisher string

	Description string
	ReleaseDate *time.Time

	Genres StringList
	Tags   StringList

	CoverImageURL string
	Screenshots   StringList

	ExternalIDs map[string]string

	PlaytimeMinutes int
	LastPlayedUnix  int64

	MetacriticScore *int
	ESRBRating      *string
	ESRBDescriptors StringList

	// PlatformData is opaque data the adapter wants round-tripped onto the
	// UserGame row for this listing (e.g. Steam's playtime-two-weeks).
	PlatformData map[string]interface{}
}

// StringList is a convenience alias kept distinct from []string so
// adapters can accept nil without call sites needing a type conversion.
type StringList = []string

// Adapter is the uniform per-platform driver contract (§4.2).
type Adapter interface {
	// Code returns this adapter's platform code (e.g. "steam").
	Code() string

	// CountGames returns the number of games the given user identifier owns.
	CountGames(userIdentifier string) (int, error)

	// FetchBatch returns a restartable page of raw games starting at offset.
	FetchBatch(userIdentifier string, offset, limit int) ([]RawGame, error)

	// GetGameDetails performs a (possibly lazy/enrichment) lookup of one
	// game's extended details by its platform-specific id.
	GetGameDetails(platformGameID string) (RawGame, error)

	// Transform maps one raw game onto the universal NormalizedGame shape.
	Transform(raw RawGame) (NormalizedGame, error)

	// ValidateCredentials checks that the given opaque credentials blob is
	// usable, failing fast with an Auth-classified error otherwise.
	ValidateCredentials(credentials map[string]interface{}) error
}
