// Package ratelimit implements the Rate Limiter (RL): a per-platform
// sliding-window limiter with adaptive slowdown and a daily cap, its
// shared window state held in Redis sorted sets so every sync worker
// process observes the same budget (§4.1), grounded on the teacher's
// rate-limit state tracking in the reference exporter's steam package.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRateExceededDaily is returned by Acquire when the platform's daily
// call cap has already been reached.
var ErrRateExceededDaily = errors.New("RateExceededDaily")

// Policy is a platform's window configuration (§4.1).
type Policy struct {
	WindowCalls    int
	WindowSeconds  time.Duration
	DailyCap       int // 0 means no daily cap
	BufferFraction float64
}

// SteamPolicy is the default policy named in §4.1: 100 calls / 300s,
// 100,000/day, slowdown kicking in at 80% of the window budget.
var SteamPolicy = Policy{
	WindowCalls:    100,
	WindowSeconds:  300 * time.Second,
	DailyCap:       100000,
	BufferFraction: 0.8,
}

// Limiter is a Redis-backed sliding-window rate limiter shared across
// every platform it's asked to gate; each platform's state is isolated
// by key prefix.
type Limiter struct {
	rdb *redis.Client

	mu      sync.Mutex
	tickets map[string]*ticketQueue
}

// New constructs a Limiter over the given Redis client.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{
		rdb:     rdb,
		tickets: make(map[string]*ticketQueue),
	}
}

// ticketQueue serializes waiters for one platform into FIFO order, since
// Redis itself has no queue notion and multiple goroutines may contend
// for the same window slot simultaneously.
type ticketQueue struct {
	mu   sync.Mutex
	next chan struct{}
}

func (l *Limiter) queueFor(platform string) *ticketQueue {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.tickets[platform]
	if !ok {
		q = &ticketQueue{}
		l.tickets[platform] = q
	}
	return q
}

// acquireTurn blocks until it is this caller's turn in the FIFO queue for
// platform, returning a release function the caller must call exactly
// once when done, whether it proceeded or errored out.
func (q *ticketQueue) acquireTurn(ctx context.Context) (func(), error) {
	q.mu.Lock()
	myTurn := q.next
	done := make(chan struct{})
	q.next = done
	q.mu.Unlock()

	if myTurn != nil {
		select {
		case <-myTurn:
		case <-ctx.Done():
			return func() {}, ctx.Err()
		}
	}
	return func() { close(done) }, nil
}

// Acquire blocks until a call against platform is within its window
// budget, applying adaptive slowdown as usage approaches the limit, then
// records the call. Returns the delay actually incurred. Fails with
// ErrRateExceededDaily if the daily cap for platform has already been hit
// (no amount of waiting resolves a daily cap; the caller must wait for
// the day to roll over).
func (l *Limiter) Acquire(ctx context.Context, platform string, weight int, policy Policy) (time.Duration, error) {
	if weight <= 0 {
		weight = 1
	}

	q := l.queueFor(platform)
	release, err := q.acquireTurn(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	start := time.Now()
	windowKey := fmt.Sprintf("ratelimit:%s:window", platform)
	dailyKey := fmt.Sprintf("ratelimit:%s:daily:%s", platform, time.Now().UTC().Format("2006-01-02"))

	if policy.DailyCap > 0 {
		count, err := l.rdb.Get(ctx, dailyKey).Int()
		if err != nil && err != redis.Nil {
			return 0, fmt.Errorf("ratelimit: daily counter read: %w", err)
		}
		if count+weight > policy.DailyCap {
			return 0, ErrRateExceededDaily
		}
	}

	for {
		now := time.Now()
		windowStart := now.Add(-policy.WindowSeconds)

		if err := l.rdb.ZRemRangeByScore(ctx, windowKey, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
			return 0, fmt.Errorf("ratelimit: trim window: %w", err)
		}

		usage, err := l.rdb.ZCard(ctx, windowKey).Result()
		if err != nil {
			return 0, fmt.Errorf("ratelimit: count window: %w", err)
		}

		ratio := float64(usage) / float64(policy.WindowCalls)

		if ratio >= 1.0 {
			oldest, err := l.oldestInWindow(ctx, windowKey)
			if err != nil {
				return 0, err
			}
			wait := oldest.Add(policy.WindowSeconds).Sub(now) + 50*time.Millisecond
			if wait > 0 {
				if err := sleepCtx(ctx, wait); err != nil {
					return 0, err
				}
			}
			continue
		}

		if ratio >= policy.BufferFraction {
			buffer := policy.BufferFraction
			if buffer >= 1.0 {
				buffer = 0.999
			}
			slowdown := 0.1 + math.Pow((ratio-buffer)/(1-buffer), 2)*4.9
			if err := sleepCtx(ctx, time.Duration(slowdown*float64(time.Second))); err != nil {
				return 0, err
			}
		}

		if err := l.record(ctx, windowKey, dailyKey, weight); err != nil {
			return 0, err
		}
		return time.Since(start), nil
	}
}

func (l *Limiter) oldestInWindow(ctx context.Context, windowKey string) (time.Time, error) {
	results, err := l.rdb.ZRangeWithScores(ctx, windowKey, 0, 0).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("ratelimit: oldest lookup: %w", err)
	}
	if len(results) == 0 {
		return time.Now(), nil
	}
	return time.UnixMilli(int64(results[0].Score)), nil
}

func (l *Limiter) record(ctx context.Context, windowKey, dailyKey string, weight int) error {
	pipe := l.rdb.TxPipeline()
	now := time.Now()
	for i := 0; i < weight; i++ {
		member := uuid.New().String()
		pipe.ZAdd(ctx, windowKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	}
	pipe.Expire(ctx, windowKey, 2*time.Hour)
	pipe.IncrBy(ctx, dailyKey, int64(weight))
	pipe.Expire(ctx, dailyKey, 24*time.Hour)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("ratelimit: record call: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
