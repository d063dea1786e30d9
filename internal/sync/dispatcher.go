package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/queue"
	"github.com/jimsantora/librarysync/internal/storage"
)

// dequeueTimeout bounds each BRPOP poll so the dispatcher loop can
// observe ctx cancellation promptly even when the queues are empty.
const dequeueTimeout = 5 * time.Second

// Dispatcher pulls jobs off the Job Queue and drives them through the
// Sync Worker, recording their outcome back onto the queue (§4.6/§4.7).
// This is the consumer half of the producer/consumer split the queue
// package only models as storage.
type Dispatcher struct {
	queue   *queue.Queue
	catalog *storage.Catalog
	worker  *Worker
	logger  *logrus.Logger
}

// NewDispatcher constructs a Dispatcher bound to its collaborators.
func NewDispatcher(q *queue.Queue, catalog *storage.Catalog, worker *Worker, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{queue: q, catalog: catalog, worker: worker, logger: logger}
}

// Run blocks, dequeuing and executing jobs until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.WithError(err).Error("dispatcher: dequeue failed")
			continue
		}
		if job == nil {
			continue
		}

		d.handle(ctx, *job)
	}
}

func (d *Dispatcher) handle(ctx context.Context, job queue.Job) {
	log := d.logger.WithFields(logrus.Fields{"job_id": job.JobID, "function": job.Function, "queue": job.Queue})

	switch job.Function {
	case "syncLibrary":
		d.handleSyncLibrary(ctx, job, log)
	case "enrichGame":
		d.handleEnrichGame(ctx, job, log)
	default:
		log.Warn("dispatcher: unrecognized job function")
		d.recordFailure(ctx, job, fmt.Errorf("unrecognized job function %q", job.Function), true)
	}
}

func (d *Dispatcher) handleEnrichGame(ctx context.Context, job queue.Job, log *logrus.Entry) {
	var args EnrichArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		log.WithError(err).Error("dispatcher: failed to decode enrichment job args")
		d.recordFailure(ctx, job, err, true)
		return
	}

	if err := d.worker.Enrich(args); err != nil {
		log.WithError(err).Warn("dispatcher: enrichment failed")
		d.recordFailure(ctx, job, err, job.Attempt+1 >= job.MaxAttempts)
		return
	}

	if rerr := d.queue.RecordResult(ctx, queue.Result{JobID: job.JobID, CompletedAt: time.Now().UTC()}); rerr != nil {
		log.WithError(rerr).Warn("dispatcher: failed to record enrichment result")
	}
}

func (d *Dispatcher) handleSyncLibrary(ctx context.Context, job queue.Job, log *logrus.Entry) {
	var args JobArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		log.WithError(err).Error("dispatcher: failed to decode job args")
		d.recordFailure(ctx, job, err, true)
		return
	}

	library, err := d.catalog.GetLibrary(args.LibraryID)
	if err != nil {
		log.WithError(err).Error("dispatcher: failed to load library")
		d.recordFailure(ctx, job, err, false)
		return
	}

	platformRow, err := d.catalog.GetPlatformByID(library.PlatformID)
	if err != nil {
		log.WithError(err).Error("dispatcher: failed to load platform")
		d.recordFailure(ctx, job, err, false)
		return
	}

	jobCtx := ctx
	var cancel context.CancelFunc
	if job.TimeoutMs > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	summary, err := d.worker.Run(jobCtx, args, library, platformRow)
	if err != nil && err != errAlreadySyncing {
		log.WithError(err).Error("dispatcher: sync worker returned an internal error")
		d.recordFailure(ctx, job, err, job.Attempt+1 >= job.MaxAttempts)
		return
	}

	output, _ := json.Marshal(summary)
	if rerr := d.queue.RecordResult(ctx, queue.Result{JobID: job.JobID, CompletedAt: time.Now().UTC(), Output: output}); rerr != nil {
		log.WithError(rerr).Warn("dispatcher: failed to record job result")
	}
}

// recordFailure records the attempt's outcome and, for a non-permanent
// failure that hasn't exhausted its queue's maxAttempts, requeues the job
// with backoffFor's linear delay instead of dropping it (§4.7's
// default/low retry-with-backoff contract).
func (d *Dispatcher) recordFailure(ctx context.Context, job queue.Job, cause error, permanent bool) {
	attempt := job.Attempt + 1

	if err := d.queue.RecordFailure(ctx, queue.Failure{
		JobID:     job.JobID,
		FailedAt:  time.Now().UTC(),
		Attempt:   attempt,
		Reason:    cause.Error(),
		Permanent: permanent,
	}); err != nil {
		d.logger.WithError(err).Error("dispatcher: failed to record job failure")
	}

	if permanent || attempt >= job.MaxAttempts {
		return
	}

	retryJob := job
	retryJob.Attempt = attempt
	notBefore := time.Now().Add(backoffFor(attempt))
	if err := d.queue.Requeue(ctx, retryJob, &notBefore); err != nil {
		d.logger.WithError(err).Error("dispatcher: failed to requeue job for retry")
	}
}

// backoffFor gives each retry attempt a growing delay, capped well below
// the queue's job timeout so a retried job still has room to run.
func backoffFor(attempt int) time.Duration {
	delay := time.Duration(attempt) * 10 * time.Second
	if delay > 2*time.Minute {
		delay = 2 * time.Minute
	}
	return delay
}
