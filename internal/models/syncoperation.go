package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncOperation is the durable audit-log row for one sync attempt.
// Counters are monotonic for the lifetime of the operation.
type SyncOperation struct {
	ID        uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LibraryID uuid.UUID           `gorm:"type:uuid;not null;index" json:"library_id"`
	Type      SyncOperationType   `json:"type"`
	Status    SyncOperationStatus `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	GamesProcessed int `json:"games_processed"`
	GamesAdded     int `json:"games_added"`
	GamesUpdated   int `json:"games_updated"`
	ErrorsCount    int `json:"errors_count"`

	ErrorDetails string      `json:"error_details,omitempty"`
	Log          StringSlice `gorm:"serializer:json" json:"log,omitempty"`
}

// TableName returns the table name for the SyncOperation model.
func (SyncOperation) TableName() string {
	return "sync_operations"
}

// AppendLog appends a single note to the operation's log, used e.g. for
// the §4.3 playtime-regression flag.
func (s *SyncOperation) AppendLog(note string) {
	s.Log = append(s.Log, note)
}
