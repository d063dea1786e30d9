package syncstate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimsantora/librarysync/internal/models"
)

func TestLockKey_PerLibrary(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	assert.NotEqual(t, lockKey(a), lockKey(b))
	assert.Contains(t, lockKey(a), a.String())
	assert.Contains(t, checkpointKey(a), a.String())
	assert.NotEqual(t, lockKey(a), checkpointKey(a))
}

func TestCheckpoint_JSONRoundTrip(t *testing.T) {
	cp := Checkpoint{
		LibraryID:      uuid.New(),
		PlatformCode:   "steam",
		UserIdentifier: "76561197960435530",
		StartedAt:      time.Now().UTC().Truncate(time.Second),
		UpdatedAt:      time.Now().UTC().Truncate(time.Second),
		LastOffset:     200,
		GamesSynced:    200,
		Status:         models.SyncStatusInProgress,
	}

	data, err := json.Marshal(cp)
	require.NoError(t, err)

	var decoded Checkpoint
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, cp.LibraryID, decoded.LibraryID)
	assert.Equal(t, cp.PlatformCode, decoded.PlatformCode)
	assert.Equal(t, cp.LastOffset, decoded.LastOffset)
	assert.Equal(t, cp.Status, decoded.Status)
}

func TestNewLockToken_Unique(t *testing.T) {
	a := NewLockToken()
	b := NewLockToken()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestCheckpointTTL_SevenDays(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, CheckpointTTL)
}
