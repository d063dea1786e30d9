package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSlice is a JSON-serialized []string column, used for the several
// free-form string-list fields in the catalog (genres, tags, screenshots...).
type StringSlice []string

// Value implements driver.Valuer for GORM/database writes.
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner for GORM/database reads.
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into StringSlice", value)
	}
	if len(raw) == 0 {
		*s = StringSlice{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// JSONMap is an opaque JSON document column. Used for the §3 fields the
// design notes call "dynamic/JSON blobs" (credentials, platformData,
// syncPosition) — treated as opaque by the core and validated only at
// the boundary adapter that produced them.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(map[string]interface{}(m))
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into JSONMap", value)
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// ExternalIDs holds the per-platform external identifiers a Game is known
// by, keyed by platform code (e.g. "steamAppId", "gogId", "epicId").
type ExternalIDs map[string]string

func (e ExternalIDs) Value() (driver.Value, error) {
	if e == nil {
		return "{}", nil
	}
	return json.Marshal(map[string]string(e))
}

func (e *ExternalIDs) Scan(value interface{}) error {
	if value == nil {
		*e = ExternalIDs{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into ExternalIDs", value)
	}
	if len(raw) == 0 {
		*e = ExternalIDs{}
		return nil
	}
	out := ExternalIDs{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*e = out
	return nil
}

// SyncStatus mirrors the UserLibrary/Checkpoint status domain in §3.
type SyncStatus string

const (
	SyncStatusPending     SyncStatus = "pending"
	SyncStatusQueued      SyncStatus = "queued"
	SyncStatusInProgress  SyncStatus = "inProgress"
	SyncStatusCompleted   SyncStatus = "completed"
	SyncStatusFailed      SyncStatus = "failed"
	SyncStatusRateLimited SyncStatus = "rateLimited"
	SyncStatusCancelled   SyncStatus = "cancelled"
)

// GameStatus is the per-user play status of a UserGame.
type GameStatus string

const (
	GameStatusUnplayed  GameStatus = "unplayed"
	GameStatusPlaying   GameStatus = "playing"
	GameStatusCompleted GameStatus = "completed"
	GameStatusAbandoned GameStatus = "abandoned"
	GameStatusWishlist  GameStatus = "wishlist"
)

// ESRBRating is the rating domain of the universal Game entity.
type ESRBRating string

const (
	ESRBRatingEveryone   ESRBRating = "E"
	ESRBRatingEveryone10 ESRBRating = "E10+"
	ESRBRatingTeen       ESRBRating = "T"
	ESRBRatingMature     ESRBRating = "M"
	ESRBRatingAdultsOnly ESRBRating = "AO"
	ESRBRatingPending    ESRBRating = "RP"
)

// MatchMethod records how a GameMatch edge was established.
type MatchMethod string

const (
	MatchMethodExternalID  MatchMethod = "externalId"
	MatchMethodTitleExact  MatchMethod = "titleExact"
	MatchMethodTitleFuzzy  MatchMethod = "titleFuzzy"
	MatchMethodManual      MatchMethod = "manual"
)

// SyncOperationType distinguishes why a sync was run.
type SyncOperationType string

const (
	SyncOperationFull        SyncOperationType = "fullSync"
	SyncOperationIncremental SyncOperationType = "incrementalSync"
	SyncOperationManual      SyncOperationType = "manualSync"
)

// SyncOperationStatus is the audit-log status domain, distinct from
// UserLibrary.SyncStatus (no rateLimited/queued phase is recorded here;
// a rate-limited attempt is logged as failed with an errorDetails note
// and a fresh SyncOperation row is opened when the deferred job resumes).
type SyncOperationStatus string

const (
	SyncOperationStarted    SyncOperationStatus = "started"
	SyncOperationInProgress SyncOperationStatus = "inProgress"
	SyncOperationCompleted  SyncOperationStatus = "completed"
	SyncOperationFailed     SyncOperationStatus = "failed"
	SyncOperationCancelled  SyncOperationStatus = "cancelled"
)
