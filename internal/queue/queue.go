// Package queue implements the Job Queue (JQ): three priority-ordered
// Redis lists plus a deferred sorted set for notBefore-gated jobs (§4.7),
// grounded on the reference stats pipeline's buffered worker pool,
// reimplemented over Redis so queued work survives a process restart.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Name identifies one of the three priority queues (§4.7).
type Name string

const (
	High    Name = "high"
	Default Name = "default"
	Low     Name = "low"
)

// priorityOrder is the strict dequeue order: high before default before low.
var priorityOrder = []Name{High, Default, Low}

// resultTTL and failureTTL are the §4.7 24h observability retention windows.
const (
	resultTTL  = 24 * time.Hour
	failureTTL = 24 * time.Hour
)

// Policy is the per-queue retry/timeout contract (§4.7).
type Policy struct {
	MaxAttempts int
	Timeout     time.Duration
}

// Policies holds the three named queues' fixed semantics.
var Policies = map[Name]Policy{
	High:    {MaxAttempts: 1, Timeout: 2 * time.Hour},
	Default: {MaxAttempts: 3, Timeout: 30 * time.Minute},
	Low:     {MaxAttempts: 5, Timeout: 30 * time.Minute},
}

// Job is the §4.7 job envelope.
type Job struct {
	JobID         string          `json:"jobId"`
	Queue         Name            `json:"queue"`
	Function      string          `json:"function"`
	Args          json.RawMessage `json:"args"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
	NotBefore     *time.Time      `json:"notBefore,omitempty"`
	TimeoutMs     int64           `json:"timeoutMs"`
	MaxAttempts   int             `json:"maxAttempts"`
	Attempt       int             `json:"attempt"`
	ResultTTLSec  int             `json:"resultTtlSec"`
	FailureTTLSec int             `json:"failureTtlSec"`
}

// Result is what a worker records for a completed job.
type Result struct {
	JobID       string          `json:"jobId"`
	CompletedAt time.Time       `json:"completedAt"`
	Output      json.RawMessage `json:"output,omitempty"`
}

// Failure is what a worker records for a job that exhausted its attempts.
type Failure struct {
	JobID     string    `json:"jobId"`
	FailedAt  time.Time `json:"failedAt"`
	Attempt   int       `json:"attempt"`
	Reason    string    `json:"reason"`
	Permanent bool      `json:"permanent"`
}

// Queue dequeues/enqueues jobs over Redis lists, with a deferred sorted
// set for jobs gated on a notBefore time (rate-limit retry scheduling).
type Queue struct {
	rdb *redis.Client
}

// New constructs a Queue backed by rdb.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func listKey(name Name) string        { return fmt.Sprintf("queue:%s", name) }
func deferredKey() string             { return "queue:deferred" }
func resultKey(jobID string) string   { return fmt.Sprintf("jobresult:%s", jobID) }
func failureKey(jobID string) string  { return fmt.Sprintf("jobfailure:%s", jobID) }

// Enqueue pushes function/args onto queue with a freshly minted job id. If
// notBefore is non-nil and in the future, the job is placed in the
// deferred set instead of the ready list until the scheduler matures it.
func (q *Queue) Enqueue(ctx context.Context, queue Name, function string, args interface{}, notBefore *time.Time) (string, error) {
	policy, ok := Policies[queue]
	if !ok {
		return "", fmt.Errorf("queue: unknown queue %q", queue)
	}

	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("queue: encode args: %w", err)
	}

	job := Job{
		JobID:         uuid.New().String(),
		Queue:         queue,
		Function:      function,
		Args:          encodedArgs,
		EnqueuedAt:    time.Now().UTC(),
		NotBefore:     notBefore,
		TimeoutMs:     policy.Timeout.Milliseconds(),
		MaxAttempts:   policy.MaxAttempts,
		ResultTTLSec:  int(resultTTL.Seconds()),
		FailureTTLSec: int(failureTTL.Seconds()),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: encode job: %w", err)
	}

	if notBefore != nil && notBefore.After(time.Now()) {
		if err := q.rdb.ZAdd(ctx, deferredKey(), redis.Z{
			Score:  float64(notBefore.UnixMilli()),
			Member: data,
		}).Err(); err != nil {
			return "", fmt.Errorf("queue: defer job: %w", err)
		}
		return job.JobID, nil
	}

	if err := q.rdb.LPush(ctx, listKey(queue), data).Err(); err != nil {
		return "", fmt.Errorf("queue: enqueue job: %w", err)
	}
	return job.JobID, nil
}

// Requeue re-enqueues an already-running job with the attempt count the
// caller set on it, optionally deferring it past a notBefore (e.g.
// rate-limit backoff).
func (q *Queue) Requeue(ctx context.Context, job Job, notBefore *time.Time) error {
	job.NotBefore = notBefore
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: encode job: %w", err)
	}

	if notBefore != nil && notBefore.After(time.Now()) {
		return q.rdb.ZAdd(ctx, deferredKey(), redis.Z{
			Score:  float64(notBefore.UnixMilli()),
			Member: data,
		}).Err()
	}
	return q.rdb.LPush(ctx, listKey(job.Queue), data).Err()
}

// Dequeue blocks (up to timeout) for the next job, checking high before
// default before low so a burst of user-initiated syncs is never starved
// behind background work, while still giving default/low a turn when
// high is empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	keys := make([]string, len(priorityOrder))
	for i, name := range priorityOrder {
		keys[i] = listKey(name)
	}

	result, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}

	// BRPop returns [key, value]; result[1] is the job payload.
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: decode job: %w", err)
	}
	return &job, nil
}

// PromoteDeferred moves every deferred job whose notBefore has elapsed
// into its ready list. Intended to be called on a short ticker by a
// background scheduler goroutine (one per process is sufficient; the
// ZRangeByScore+ZRem pair is safe for concurrent callers since ZRem only
// removes members that are still present).
func (q *Queue) PromoteDeferred(ctx context.Context, now time.Time) (int, error) {
	members, err := q.rdb.ZRangeByScore(ctx, deferredKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scan deferred: %w", err)
	}

	promoted := 0
	for _, raw := range members {
		removed, err := q.rdb.ZRem(ctx, deferredKey(), raw).Result()
		if err != nil || removed == 0 {
			continue // another caller already claimed it
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		if err := q.rdb.LPush(ctx, listKey(job.Queue), raw).Err(); err != nil {
			continue
		}
		promoted++
	}
	return promoted, nil
}

// RunScheduler polls PromoteDeferred at interval until ctx is cancelled.
func (q *Queue) RunScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			q.PromoteDeferred(ctx, now)
		}
	}
}

// RecordResult stores a job's successful output for §4.7's 24h
// observability window.
func (q *Queue) RecordResult(ctx context.Context, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("queue: encode result: %w", err)
	}
	return q.rdb.Set(ctx, resultKey(res.JobID), data, resultTTL).Err()
}

// RecordFailure stores a job's terminal failure for §4.7's 24h
// observability window.
func (q *Queue) RecordFailure(ctx context.Context, fail Failure) error {
	data, err := json.Marshal(fail)
	if err != nil {
		return fmt.Errorf("queue: encode failure: %w", err)
	}
	return q.rdb.Set(ctx, failureKey(fail.JobID), data, failureTTL).Err()
}

// GetResult fetches a previously recorded result, if still within its TTL.
func (q *Queue) GetResult(ctx context.Context, jobID string) (*Result, error) {
	data, err := q.rdb.Get(ctx, resultKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: load result: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("queue: decode result: %w", err)
	}
	return &res, nil
}

// GetFailure fetches a previously recorded failure, if still within its TTL.
func (q *Queue) GetFailure(ctx context.Context, jobID string) (*Failure, error) {
	data, err := q.rdb.Get(ctx, failureKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: load failure: %w", err)
	}
	var fail Failure
	if err := json.Unmarshal(data, &fail); err != nil {
		return nil, fmt.Errorf("queue: decode failure: %w", err)
	}
	return &fail, nil
}
