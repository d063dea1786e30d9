// Package sync implements the Sync Worker (SW): the state machine that
// drives one library's sync to completion using the Platform Adapter,
// Rate Limiter, Catalog Store, Sync State, and Progress Tracker together
// (§4.6), grounded on the teacher's LibrarySyncService.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/models"
	"github.com/jimsantora/librarysync/internal/platform"
	"github.com/jimsantora/librarysync/internal/progress"
	"github.com/jimsantora/librarysync/internal/queue"
	"github.com/jimsantora/librarysync/internal/ratelimit"
	"github.com/jimsantora/librarysync/internal/storage"
	"github.com/jimsantora/librarysync/internal/syncstate"
)

// BatchSize is the §4.6 upsert/checkpoint granularity: "in batches of 100
// to amortize database round-trips and give checkpointing granularity."
const BatchSize = 100

// maxTransientAttempts and backoff bounds implement §4.6's "exponential
// backoff... abort after N attempts (default 5)" rule.
const (
	maxTransientAttempts = 5
	backoffBase          = 500 * time.Millisecond
	backoffMax           = 30 * time.Second
)

// lockTTL must exceed any realistic single-batch stall; the worker
// renews it on every committed batch (§4.4's heartbeat rule).
const lockTTL = 5 * time.Minute

// JobArgs is the §4.6 SW input: `{libraryId, force, syncType}`.
type JobArgs struct {
	LibraryID uuid.UUID             `json:"libraryId"`
	Force     bool                  `json:"force"`
	SyncType  models.SyncOperationType `json:"syncType"`
}

// EnrichArgs is the low-priority "enrichGame" job payload: looks up one
// game's app-details/review metadata and merges it onto the existing
// catalog row (§4.7 "low: enrichment/merge jobs").
type EnrichArgs struct {
	GameID         uuid.UUID `json:"gameId"`
	PlatformCode   string    `json:"platformCode"`
	PlatformGameID string    `json:"platformGameId"`
}

// Summary is the §4.6 SW output: `{status, gamesProcessed, gamesAdded,
// gamesUpdated, errorsCount, durationMs}`.
type Summary struct {
	Status         models.SyncStatus `json:"status"`
	GamesProcessed int               `json:"gamesProcessed"`
	GamesAdded     int               `json:"gamesAdded"`
	GamesUpdated   int               `json:"gamesUpdated"`
	ErrorsCount    int               `json:"errorsCount"`
	DurationMs     int64             `json:"durationMs"`
}

// errAlreadySyncing is returned (not logged as a failure) when CheckLock
// finds the library mid-flight and the caller did not pass force.
var errAlreadySyncing = errors.New("sync: library already syncing")

// errCancelled signals that ShouldPause observed the lock gone (the
// cancel endpoint force-released it), distinct from a completed loop.
var errCancelled = errors.New("sync: cancelled")

// Worker drives one library's sync state machine to completion.
type Worker struct {
	catalog    *storage.Catalog
	state      *syncstate.State
	tracker    *progress.Tracker
	limiter    *ratelimit.Limiter
	registry   *platform.Registry
	queue      *queue.Queue
	logger     *logrus.Logger
	policies   map[string]ratelimit.Policy
}

// Config wires a Worker's collaborators.
type Config struct {
	Catalog  *storage.Catalog
	State    *syncstate.State
	Tracker  *progress.Tracker
	Limiter  *ratelimit.Limiter
	Registry *platform.Registry
	Queue    *queue.Queue
	Logger   *logrus.Logger
	Policies map[string]ratelimit.Policy
}

// New constructs a Worker from cfg.
func New(cfg Config) *Worker {
	policies := cfg.Policies
	if policies == nil {
		policies = map[string]ratelimit.Policy{"steam": ratelimit.SteamPolicy}
	}
	return &Worker{
		catalog:  cfg.Catalog,
		state:    cfg.State,
		tracker:  cfg.Tracker,
		limiter:  cfg.Limiter,
		registry: cfg.Registry,
		queue:    cfg.Queue,
		logger:   cfg.Logger,
		policies: policies,
	}
}

func (w *Worker) policyFor(platformCode string) ratelimit.Policy {
	if p, ok := w.policies[platformCode]; ok {
		return p
	}
	return ratelimit.SteamPolicy
}

// Run executes one sync job to completion, returning its summary. Errors
// returned are unexpected/internal; platform failures are classified and
// folded into the returned Summary's terminal status instead.
func (w *Worker) Run(ctx context.Context, args JobArgs, library *models.UserLibrary, plat *models.Platform) (Summary, error) {
	started := time.Now()

	if !args.Force {
		syncing, err := w.state.IsSyncing(ctx, args.LibraryID)
		if err != nil {
			return Summary{}, err
		}
		if syncing {
			return Summary{Status: models.SyncStatusInProgress}, errAlreadySyncing
		}
	}

	lockToken := syncstate.NewLockToken()
	acquired, err := w.state.AcquireLock(ctx, args.LibraryID, lockToken, lockTTL)
	if err != nil {
		return Summary{}, err
	}
	if !acquired && !args.Force {
		return Summary{Status: models.SyncStatusInProgress}, errAlreadySyncing
	}

	adapter, err := w.registry.Get(plat.Code)
	if err != nil {
		return Summary{}, err
	}

	cp, existing, err := w.state.Load(ctx, args.LibraryID)
	if err != nil {
		return Summary{}, err
	}
	if !existing || args.Force {
		cp, err = w.state.Initialize(ctx, args.LibraryID, plat.Code, library.UserIdentifier)
		if err != nil {
			return Summary{}, err
		}
	}

	op := &models.SyncOperation{
		ID:        uuid.New(),
		LibraryID: args.LibraryID,
		Type:      args.SyncType,
		Status:    models.SyncOperationStarted,
		StartedAt: started,
	}
	if err := w.catalog.RecordSyncOperation(op); err != nil {
		w.logger.WithError(err).Warn("sync: failed to record sync operation start")
	}

	if err := w.catalog.SetLibrarySyncStatus(args.LibraryID, models.SyncStatusInProgress, ""); err != nil {
		w.logger.WithError(err).Warn("sync: failed to mark library in progress")
	}

	if err := w.tracker.Start(ctx, progress.Event{
		LibraryID: args.LibraryID,
		Platform:  plat.Code,
		Status:    progress.StatusStarting,
	}); err != nil {
		w.logger.WithError(err).Warn("sync: failed to publish start event")
	}

	result, classErr := w.runLoop(ctx, args, library, plat, adapter, &cp, op, lockToken)

	result = w.finalize(ctx, args, lockToken, op, started, result, classErr)
	return result, nil
}

// runLoop is the §4.6 fetch/upsert/checkpoint loop. The returned error,
// if any, is a *platform.AdapterError (already retried per its Kind where
// applicable) describing why the loop stopped short of completion.
func (w *Worker) runLoop(ctx context.Context, args JobArgs, library *models.UserLibrary, plat *models.Platform, adapter platform.Adapter, cp *syncstate.Checkpoint, op *models.SyncOperation, lockToken string) (Summary, error) {
	policy := w.policyFor(plat.Code)

	total, err := withRateLimit(ctx, w, plat.Code, policy, func() (int, error) {
		return adapter.CountGames(library.UserIdentifier)
	})
	if err != nil {
		return Summary{GamesProcessed: cp.GamesSynced}, err
	}

	offset := cp.LastOffset
	summary := Summary{GamesProcessed: cp.GamesSynced}

	for offset < total {
		if pause, err := w.state.ShouldPause(ctx, args.LibraryID, lockToken); err != nil {
			w.logger.WithError(err).Warn("sync: failed to check pause signal")
		} else if pause {
			return summary, errCancelled
		}

		raw, err := withRateLimit(ctx, w, plat.Code, policy, func() ([]platform.RawGame, error) {
			return adapter.FetchBatch(library.UserIdentifier, offset, BatchSize)
		})
		if err != nil {
			return summary, err
		}
		if len(raw) == 0 {
			break
		}

		normalized := make([]platform.NormalizedGame, 0, len(raw))
		for _, rg := range raw {
			ng, err := adapter.Transform(rg)
			if err != nil {
				summary.ErrorsCount++
				op.ErrorsCount++
				op.AppendLog(fmt.Sprintf("transform failed at offset %d: %v", offset, err))
				continue
			}
			normalized = append(normalized, ng)
		}

		counts, newGames, err := w.catalog.UpsertGamesBatch(args.LibraryID, normalized, op)
		if err != nil {
			return summary, err
		}

		offset += len(raw)
		summary.GamesProcessed += len(raw)
		summary.GamesAdded += counts.Added
		summary.GamesUpdated += counts.Updated

		w.enqueueEnrichment(ctx, newGames)

		if err := w.state.UpdateOffset(ctx, args.LibraryID, offset, len(raw)); err != nil {
			w.logger.WithError(err).Warn("sync: failed to persist checkpoint offset")
		}
		if _, err := w.state.RenewLock(ctx, args.LibraryID, lockToken, lockTTL); err != nil {
			w.logger.WithError(err).Warn("sync: failed to renew lock")
		}

		gamesTotal := total
		if err := w.tracker.Update(ctx, progress.Event{
			LibraryID:       args.LibraryID,
			Platform:        plat.Code,
			Status:          progress.StatusSyncing,
			ProgressPercent: percentOf(offset, total),
			GamesProcessed:  summary.GamesProcessed,
			GamesTotal:      &gamesTotal,
			GamesAdded:      summary.GamesAdded,
			GamesUpdated:    summary.GamesUpdated,
		}); err != nil {
			w.logger.WithError(err).Warn("sync: failed to publish progress event")
		}
	}

	summary.Status = models.SyncStatusCompleted
	return summary, nil
}

// finalize classifies a possible loop error and drives the checkpoint,
// catalog, progress, and lock collaborators to a terminal state.
func (w *Worker) finalize(ctx context.Context, args JobArgs, lockToken string, op *models.SyncOperation, started time.Time, result Summary, classErr error) Summary {
	duration := time.Since(started)
	now := time.Now().UTC()

	if classErr == nil {
		result.Status = models.SyncStatusCompleted
		op.Status = models.SyncOperationCompleted
		op.CompletedAt = &now
		op.GamesProcessed = result.GamesProcessed
		op.GamesAdded = result.GamesAdded
		op.GamesUpdated = result.GamesUpdated
		w.catalog.UpdateSyncOperation(op)
		w.catalog.SetLibrarySyncStatus(args.LibraryID, models.SyncStatusCompleted, "")
		w.state.SetStatus(ctx, args.LibraryID, models.SyncStatusCompleted, "")
		w.tracker.Complete(ctx, progress.Event{
			LibraryID:      args.LibraryID,
			Status:         progress.StatusCompleted,
			GamesProcessed: result.GamesProcessed,
			GamesAdded:     result.GamesAdded,
			GamesUpdated:   result.GamesUpdated,
		})
		w.state.ReleaseLock(ctx, args.LibraryID, lockToken)
		result.DurationMs = duration.Milliseconds()
		return result
	}

	if errors.Is(classErr, errCancelled) {
		result.Status = models.SyncStatusCancelled
		op.Status = models.SyncOperationCancelled
		op.CompletedAt = &now
		op.GamesProcessed = result.GamesProcessed
		op.GamesAdded = result.GamesAdded
		op.GamesUpdated = result.GamesUpdated
		w.catalog.UpdateSyncOperation(op)
		w.catalog.SetLibrarySyncStatus(args.LibraryID, models.SyncStatusCancelled, "")
		w.state.SetStatus(ctx, args.LibraryID, models.SyncStatusCancelled, "")
		w.tracker.Complete(ctx, progress.Event{
			LibraryID:      args.LibraryID,
			Status:         progress.StatusCancelled,
			GamesProcessed: result.GamesProcessed,
			GamesAdded:     result.GamesAdded,
			GamesUpdated:   result.GamesUpdated,
		})
		// No ReleaseLock: the cancel endpoint already force-released it,
		// and the checkpoint (§4.6 "checkpoint retained") is left intact
		// for a future sync to resume from.
		result.DurationMs = duration.Milliseconds()
		return result
	}

	var adapterErr *platform.AdapterError
	if !errors.As(classErr, &adapterErr) {
		adapterErr = &platform.AdapterError{Kind: platform.ErrTransient, Message: classErr.Error()}
	}

	switch adapterErr.Kind {
	case platform.ErrRateLimited:
		result.Status = models.SyncStatusRateLimited
		op.Status = models.SyncOperationFailed
		op.ErrorDetails = adapterErr.Error()
		op.CompletedAt = &now
		w.catalog.UpdateSyncOperation(op)
		w.state.SetStatus(ctx, args.LibraryID, models.SyncStatusRateLimited, adapterErr.Message)
		w.catalog.SetLibrarySyncStatus(args.LibraryID, models.SyncStatusRateLimited, adapterErr.Message)
		w.tracker.Complete(ctx, progress.Event{
			LibraryID: args.LibraryID,
			Status:    progress.StatusRateLimited,
			Message:   adapterErr.Message,
		})
		retryAfter := time.Duration(adapterErr.RetryAfter) * time.Second
		if retryAfter <= 0 {
			retryAfter = time.Minute
		}
		notBefore := time.Now().Add(retryAfter)
		if w.queue != nil {
			if _, err := w.queue.Enqueue(ctx, queue.Low, "syncLibrary", args, &notBefore); err != nil {
				w.logger.WithError(err).Error("sync: failed to re-enqueue rate-limited job")
			}
		}
		w.state.ReleaseLock(ctx, args.LibraryID, lockToken)

	case platform.ErrAuth:
		result.Status = models.SyncStatusFailed
		op.Status = models.SyncOperationFailed
		op.ErrorDetails = adapterErr.Error()
		op.CompletedAt = &now
		w.catalog.UpdateSyncOperation(op)
		w.catalog.SetLibrarySyncStatus(args.LibraryID, models.SyncStatusFailed, adapterErr.Message)
		w.state.SetStatus(ctx, args.LibraryID, models.SyncStatusFailed, adapterErr.Message)
		w.tracker.Complete(ctx, progress.Event{LibraryID: args.LibraryID, Status: progress.StatusFailed, Message: adapterErr.Message})
		w.state.ReleaseLock(ctx, args.LibraryID, lockToken)

	case platform.ErrNotFound, platform.ErrPermanent, platform.ErrTransient:
		result.Status = models.SyncStatusFailed
		op.Status = models.SyncOperationFailed
		op.ErrorDetails = adapterErr.Error()
		op.CompletedAt = &now
		w.catalog.UpdateSyncOperation(op)
		w.catalog.SetLibrarySyncStatus(args.LibraryID, models.SyncStatusFailed, adapterErr.Message)
		w.state.SetStatus(ctx, args.LibraryID, models.SyncStatusFailed, adapterErr.Message)
		w.tracker.Complete(ctx, progress.Event{LibraryID: args.LibraryID, Status: progress.StatusFailed, Message: adapterErr.Message})
		w.state.ReleaseLock(ctx, args.LibraryID, lockToken)

	default:
		result.Status = models.SyncStatusFailed
		w.catalog.SetLibrarySyncStatus(args.LibraryID, models.SyncStatusFailed, adapterErr.Message)
		w.state.ReleaseLock(ctx, args.LibraryID, lockToken)
	}

	result.DurationMs = duration.Milliseconds()
	return result
}

// withRateLimit acquires the platform's shared budget before calling fn,
// then retries fn with full-jitter exponential backoff when it fails
// with a Transient error, up to maxTransientAttempts (§4.6). Non-Transient
// classified errors are returned immediately for finalize to handle.
func withRateLimit[T any](ctx context.Context, w *Worker, platformCode string, policy ratelimit.Policy, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if _, err := w.limiter.Acquire(ctx, platformCode, 1, policy); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		var adapterErr *platform.AdapterError
		if !errors.As(err, &adapterErr) || adapterErr.Kind != platform.ErrTransient {
			return zero, err
		}
		if attempt >= maxTransientAttempts-1 {
			return zero, err
		}
		if sleepErr := sleepWithJitter(ctx, attempt); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

func sleepWithJitter(ctx context.Context, attempt int) error {
	delay := time.Duration(math.Min(float64(backoffMax), float64(backoffBase)*math.Pow(2, float64(attempt))))
	jittered := time.Duration(rand.Int63n(int64(delay) + 1))
	select {
	case <-time.After(jittered):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueueEnrichment queues one low-priority "enrichGame" job per newly
// discovered game so app-details/review metadata is fetched lazily
// instead of blocking the main sync loop (§4.2/§4.7).
func (w *Worker) enqueueEnrichment(ctx context.Context, newGames []storage.NewGameRef) {
	if w.queue == nil {
		return
	}
	for _, ref := range newGames {
		args := EnrichArgs{GameID: ref.GameID, PlatformCode: ref.PlatformCode, PlatformGameID: ref.PlatformGameID}
		if _, err := w.queue.Enqueue(ctx, queue.Low, "enrichGame", args, nil); err != nil {
			w.logger.WithError(err).Warn("sync: failed to enqueue enrichment job")
		}
	}
}

// Enrich fetches one game's lazily-loaded details from its platform
// adapter and merges them onto the existing catalog row. Invoked by the
// dispatcher for "enrichGame" jobs.
func (w *Worker) Enrich(args EnrichArgs) error {
	adapter, err := w.registry.Get(args.PlatformCode)
	if err != nil {
		return err
	}

	raw, err := adapter.GetGameDetails(args.PlatformGameID)
	if err != nil {
		return err
	}

	ng, err := adapter.Transform(raw)
	if err != nil {
		return err
	}

	return w.catalog.EnrichGame(args.GameID, ng)
}

func percentOf(processed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := (processed * 100) / total
	if pct > 100 {
		pct = 100
	}
	return pct
}
