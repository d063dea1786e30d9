// Package progress implements the Progress Tracker (PT): cadence-limited
// progress publishing over the Realtime Bus plus a short-TTL snapshot for
// polling clients (§4.5), grounded on the teacher's SyncProgress struct.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jimsantora/librarysync/internal/realtime"
)

// SnapshotTTL is how long the per-library progress snapshot survives in
// Redis for clients that poll instead of subscribing (§4.5: "≈ 1h").
const SnapshotTTL = 1 * time.Hour

// Status values for ProgressEvent.Status (§4.5).
const (
	StatusStarting    = "starting"
	StatusSyncing     = "syncing"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusRateLimited = "rateLimited"
	StatusCancelled   = "cancelled"
)

// Event is the §4.5 ProgressEvent document.
type Event struct {
	LibraryID       uuid.UUID `json:"libraryId"`
	Platform        string    `json:"platform"`
	Status          string    `json:"status"`
	ProgressPercent int       `json:"progressPercent"`
	GamesProcessed  int       `json:"gamesProcessed"`
	GamesTotal      *int      `json:"gamesTotal,omitempty"`
	GamesAdded      int       `json:"gamesAdded"`
	GamesUpdated    int       `json:"gamesUpdated"`
	CurrentGame     string    `json:"currentGame,omitempty"`
	Message         string    `json:"message,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Errors          []string  `json:"errors,omitempty"`
	RatePerMinute   float64   `json:"ratePerMinute"`
}

var terminalStatuses = map[string]bool{
	StatusCompleted:   true,
	StatusFailed:      true,
	StatusCancelled:   true,
	StatusRateLimited: true,
}

// Tracker publishes progress events at a bounded cadence and mirrors the
// latest one to a pollable Redis snapshot.
type Tracker struct {
	rdb *redis.Client
	hub *realtime.Hub

	// per-library cadence state
	state map[uuid.UUID]*cadence
}

type cadence struct {
	lastPublished   time.Time
	gamesSinceFlush int
	lastGames       int
	// updateTimestamps is a rolling window used to compute ratePerMinute,
	// a user-facing throughput figure distinct from RL's platform-call
	// budget tracking.
	updateTimestamps []time.Time
}

// New constructs a Tracker publishing over hub and snapshotting to rdb.
func New(rdb *redis.Client, hub *realtime.Hub) *Tracker {
	return &Tracker{
		rdb:   rdb,
		hub:   hub,
		state: make(map[uuid.UUID]*cadence),
	}
}

// minInterval and gamesPerFlush are the §4.6/§4.5 cadence bounds: Update
// publishes once 10 more games have been processed since the last publish
// OR 2 seconds have passed, whichever comes first.
const (
	minInterval   = 2 * time.Second
	gamesPerFlush = 10
)

// Start records the beginning of a sync and flushes immediately
// (terminal-adjacent events always flush per §4.5).
func (t *Tracker) Start(ctx context.Context, ev Event) error {
	ev.Status = StatusStarting
	ev.StartedAt = time.Now().UTC()
	ev.UpdatedAt = ev.StartedAt
	t.state[ev.LibraryID] = &cadence{lastPublished: ev.StartedAt}
	return t.flush(ctx, ev)
}

// Update is called by SW as games are processed; it only actually
// publishes/snapshots when the cadence bound has elapsed, unless the
// event's status is terminal.
func (t *Tracker) Update(ctx context.Context, ev Event) error {
	c, ok := t.state[ev.LibraryID]
	if !ok {
		c = &cadence{}
		t.state[ev.LibraryID] = c
	}

	now := time.Now().UTC()
	ev.UpdatedAt = now
	c.gamesSinceFlush += ev.GamesProcessed - c.lastGames
	c.lastGames = ev.GamesProcessed
	c.updateTimestamps = append(trimOlderThan(c.updateTimestamps, now.Add(-1*time.Minute)), now)
	ev.RatePerMinute = ratePerMinute(c.updateTimestamps, now)

	terminal := terminalStatuses[ev.Status]
	elapsed := now.Sub(c.lastPublished) >= minInterval
	dueByCount := c.gamesSinceFlush >= gamesPerFlush

	if !terminal && !elapsed && !dueByCount {
		return nil
	}

	c.lastPublished = now
	c.gamesSinceFlush = 0
	return t.flush(ctx, ev)
}

// Complete flushes a terminal event and clears cadence state for the
// library.
func (t *Tracker) Complete(ctx context.Context, ev Event) error {
	ev.UpdatedAt = time.Now().UTC()
	delete(t.state, ev.LibraryID)
	return t.flush(ctx, ev)
}

func (t *Tracker) flush(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("progress: encode event: %w", err)
	}
	if err := t.rdb.Set(ctx, snapshotKey(ev.LibraryID), data, SnapshotTTL).Err(); err != nil {
		return fmt.Errorf("progress: snapshot: %w", err)
	}
	if t.hub != nil {
		t.hub.Publish(realtime.LibraryRoom(ev.LibraryID.String()), realtime.EventSyncProgress, ev)
	}
	return nil
}

// Latest returns the most recent snapshot for a library, for clients
// polling instead of subscribing over RB.
func (t *Tracker) Latest(ctx context.Context, libraryID uuid.UUID) (Event, bool, error) {
	data, err := t.rdb.Get(ctx, snapshotKey(libraryID)).Bytes()
	if err == redis.Nil {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("progress: load snapshot: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false, fmt.Errorf("progress: decode snapshot: %w", err)
	}
	return ev, true, nil
}

func snapshotKey(libraryID uuid.UUID) string {
	return fmt.Sprintf("progress:%s", libraryID)
}

// trimOlderThan drops timestamps at or before cutoff, keeping the rolling
// window bounded for a long-running sync.
func trimOlderThan(timestamps []time.Time, cutoff time.Time) []time.Time {
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// ratePerMinute computes throughput from a rolling window of update
// timestamps spanning at most the last minute.
func ratePerMinute(timestamps []time.Time, now time.Time) float64 {
	if len(timestamps) == 0 {
		return 0
	}
	span := now.Sub(timestamps[0]).Minutes()
	if span <= 0 {
		return float64(len(timestamps))
	}
	return float64(len(timestamps)) / span
}
