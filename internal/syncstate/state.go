// Package syncstate implements Sync State (SS): per-library checkpoint,
// lock, and cancellation signal over Redis, so exactly one worker syncs a
// given library at a time even across process restarts (§4.4).
package syncstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jimsantora/librarysync/internal/models"
)

// CheckpointTTL bounds how long an idle checkpoint is retained (§3:
// "Lifetime ≤ 7 days of inactivity").
const CheckpointTTL = 7 * 24 * time.Hour

// Checkpoint is SS's durable per-library sync cursor.
type Checkpoint struct {
	LibraryID      uuid.UUID           `json:"libraryId"`
	PlatformCode   string              `json:"platformCode"`
	UserIdentifier string              `json:"userIdentifier"`
	StartedAt      time.Time           `json:"startedAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	LastOffset     int                 `json:"lastOffset"`
	GamesSynced    int                 `json:"gamesSynced"`
	Status         models.SyncStatus   `json:"status"`
	Error          string              `json:"error,omitempty"`
	RetryAfterSec  int                 `json:"retryAfterSec,omitempty"`
}

// State is the Redis-backed SS implementation.
type State struct {
	rdb *redis.Client
}

// New constructs an SS bound to the given Redis client.
func New(rdb *redis.Client) *State {
	return &State{rdb: rdb}
}

func lockKey(libraryID uuid.UUID) string       { return fmt.Sprintf("synclock:%s", libraryID) }
func checkpointKey(libraryID uuid.UUID) string { return fmt.Sprintf("synccheckpoint:%s", libraryID) }

// AcquireLock sets the per-library lock with the given TTL (which must be
// at least the caller's job timeout), holder identified by lockToken.
// Returns false if the lock is already held by someone else.
func (s *State) AcquireLock(ctx context.Context, libraryID uuid.UUID, lockToken string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(libraryID), lockToken, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("syncstate: acquire lock: %w", err)
	}
	return ok, nil
}

// RenewLock extends the lock's TTL, provided lockToken still matches the
// current holder. The worker must call this at least every ⅓ TTL while
// running (§4.4's heartbeat rule), since a lapsed heartbeat lets the key
// expire and become eligible for takeover by another worker.
func (s *State) RenewLock(ctx context.Context, libraryID uuid.UUID, lockToken string, ttl time.Duration) (bool, error) {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
	res, err := script.Run(ctx, s.rdb, []string{lockKey(libraryID)}, lockToken, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("syncstate: renew lock: %w", err)
	}
	return res == 1, nil
}

// ReleaseLock deletes the lock, provided lockToken still matches the
// current holder (so a worker can never release a lock it no longer
// owns, e.g. after a stale takeover by another worker).
func (s *State) ReleaseLock(ctx context.Context, libraryID uuid.UUID, lockToken string) error {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	if err := script.Run(ctx, s.rdb, []string{lockKey(libraryID)}, lockToken).Err(); err != nil {
		return fmt.Errorf("syncstate: release lock: %w", err)
	}
	return nil
}

// ForceReleaseLock deletes the lock unconditionally, regardless of which
// worker holds it. Used by the cancel endpoint (§6.1): the current holder
// observes the deleted lock on its next ShouldPause check and stops.
func (s *State) ForceReleaseLock(ctx context.Context, libraryID uuid.UUID) error {
	if err := s.rdb.Del(ctx, lockKey(libraryID)).Err(); err != nil {
		return fmt.Errorf("syncstate: force release lock: %w", err)
	}
	return nil
}

// IsSyncing reports whether a library currently holds a sync lock.
func (s *State) IsSyncing(ctx context.Context, libraryID uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, lockKey(libraryID)).Result()
	if err != nil {
		return false, fmt.Errorf("syncstate: is syncing: %w", err)
	}
	return n > 0, nil
}

// ShouldPause reports whether the given worker should stop: true once its
// lock has been deleted or has expired out from under it (cancellation or
// stale-lock takeover by another worker), per §4.4.
func (s *State) ShouldPause(ctx context.Context, libraryID uuid.UUID, lockToken string) (bool, error) {
	holder, err := s.rdb.Get(ctx, lockKey(libraryID)).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("syncstate: should pause: %w", err)
	}
	return holder != lockToken, nil
}

// Initialize creates a fresh checkpoint at offset zero for a library
// beginning a new sync.
func (s *State) Initialize(ctx context.Context, libraryID uuid.UUID, platformCode, userIdentifier string) (Checkpoint, error) {
	now := time.Now().UTC()
	cp := Checkpoint{
		LibraryID:      libraryID,
		PlatformCode:   platformCode,
		UserIdentifier: userIdentifier,
		StartedAt:      now,
		UpdatedAt:      now,
		LastOffset:     0,
		GamesSynced:    0,
		Status:         models.SyncStatusInProgress,
	}
	return cp, s.Save(ctx, cp)
}

// Load returns the current checkpoint for a library, or (Checkpoint{},
// false, nil) if none exists.
func (s *State) Load(ctx context.Context, libraryID uuid.UUID) (Checkpoint, bool, error) {
	data, err := s.rdb.Get(ctx, checkpointKey(libraryID)).Bytes()
	if err == redis.Nil {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("syncstate: load checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("syncstate: decode checkpoint: %w", err)
	}
	return cp, true, nil
}

// Save persists cp with the §3 7-day idle lifetime.
func (s *State) Save(ctx context.Context, cp Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("syncstate: encode checkpoint: %w", err)
	}
	if err := s.rdb.Set(ctx, checkpointKey(cp.LibraryID), data, CheckpointTTL).Err(); err != nil {
		return fmt.Errorf("syncstate: save checkpoint: %w", err)
	}
	return nil
}

// UpdateOffset advances the resume offset and games-synced counter, then
// persists the checkpoint. Called after every committed batch (§4.6: "in
// batches of 100 to amortize database round-trips").
func (s *State) UpdateOffset(ctx context.Context, libraryID uuid.UUID, offset, gamesSyncedDelta int) error {
	cp, ok, err := s.Load(ctx, libraryID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("syncstate: update offset: no checkpoint for library %s", libraryID)
	}
	cp.LastOffset = offset
	cp.GamesSynced += gamesSyncedDelta
	return s.Save(ctx, cp)
}

// SetStatus updates the checkpoint's status (and optional error message).
// Mirroring this onto UserLibrary.syncStatus is the caller's
// responsibility via the Catalog Store, since SS itself has no database
// handle (§4.4: "mirrors status into CS.UserLibrary via CS API").
func (s *State) SetStatus(ctx context.Context, libraryID uuid.UUID, status models.SyncStatus, syncErr string) error {
	cp, ok, err := s.Load(ctx, libraryID)
	if err != nil {
		return err
	}
	if !ok {
		cp = Checkpoint{LibraryID: libraryID, StartedAt: time.Now().UTC()}
	}
	cp.Status = status
	cp.Error = syncErr
	return s.Save(ctx, cp)
}

// NewLockToken mints an opaque token identifying one worker's hold on a
// library's lock, so RenewLock/ReleaseLock never act on a lock another
// worker has since taken over.
func NewLockToken() string {
	return uuid.New().String()
}
