package sync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/models"
	"github.com/jimsantora/librarysync/internal/queue"
	"github.com/jimsantora/librarysync/internal/storage"
)

// SchedulerConfig configures the background producer of default-priority
// sync jobs, generalized from the teacher's quiet-hours auto-sync config
// to the per-platform/library model (§4.6/§5).
type SchedulerConfig struct {
	Enabled bool

	CheckInterval time.Duration
	SyncInterval  time.Duration

	// QuietHoursStart/End are 24h-clock hours during which no new jobs
	// are scheduled (e.g. 1..6 for 1am-6am).
	QuietHoursStart int
	QuietHoursEnd   int
}

// DefaultSchedulerConfig mirrors the teacher's conservative defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:         false,
		CheckInterval:   15 * time.Minute,
		SyncInterval:    6 * time.Hour,
		QuietHoursStart: 1,
		QuietHoursEnd:   6,
	}
}

// Scheduler periodically enqueues a "default" priority syncLibrary job
// for every syncable library whose SyncInterval has elapsed, grounded on
// the teacher's SyncScheduler.
type Scheduler struct {
	config  SchedulerConfig
	catalog *storage.Catalog
	queue   *queue.Queue
	logger  *logrus.Logger

	mu      sync.Mutex
	ticker  *time.Ticker
	cancel  context.CancelFunc
	running bool

	scheduled int64
}

// NewScheduler constructs a Scheduler bound to catalog and queue.
func NewScheduler(config SchedulerConfig, catalog *storage.Catalog, q *queue.Queue, logger *logrus.Logger) *Scheduler {
	return &Scheduler{config: config, catalog: catalog, queue: q, logger: logger}
}

// Start launches the scheduler's background loop, doing nothing if it is
// already running or disabled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || !s.config.Enabled {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.ticker = time.NewTicker(s.config.CheckInterval)
	s.running = true

	go s.loop(runCtx)
}

// Stop halts the background loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.running = false
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if s.isQuietHours(time.Now()) {
		s.logger.Debug("sync: skipping scheduled sweep during quiet hours")
		return
	}

	libraries, err := s.catalog.ListSyncableLibraries()
	if err != nil {
		s.logger.WithError(err).Error("sync: failed to list syncable libraries for scheduled sweep")
		return
	}

	for i := range libraries {
		lib := &libraries[i]
		if !lib.IsSyncable() {
			continue
		}
		if !lib.NeedsSyncCheck(s.config.SyncInterval) {
			continue
		}

		jobID, err := s.queue.Enqueue(ctx, queue.Default, "syncLibrary", JobArgs{
			LibraryID: lib.ID,
			Force:     false,
			SyncType:  models.SyncOperationIncremental,
		}, nil)
		if err != nil {
			s.logger.WithError(err).WithField("library_id", lib.ID).Error("sync: failed to enqueue scheduled sync")
			continue
		}

		s.mu.Lock()
		s.scheduled++
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{"library_id": lib.ID, "job_id": jobID}).Info("sync: scheduled automatic sync")
	}
}

// isQuietHours reports whether now falls within the configured window,
// handling the overnight wraparound case (start > end) the same way the
// teacher's formatQuietHours/isQuietHours pair did.
func (s *Scheduler) isQuietHours(now time.Time) bool {
	start, end := s.config.QuietHoursStart, s.config.QuietHoursEnd
	if start == end {
		return false
	}
	hour := now.Hour()
	if start > end {
		return hour >= start || hour < end
	}
	return hour >= start && hour < end
}
