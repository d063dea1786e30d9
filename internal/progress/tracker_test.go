package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTrimOlderThan(t *testing.T) {
	now := time.Now()
	timestamps := []time.Time{
		now.Add(-90 * time.Second),
		now.Add(-30 * time.Second),
		now.Add(-5 * time.Second),
	}

	kept := trimOlderThan(timestamps, now.Add(-1*time.Minute))
	assert.Len(t, kept, 2)
}

func TestRatePerMinute_Empty(t *testing.T) {
	assert.Equal(t, 0.0, ratePerMinute(nil, time.Now()))
}

func TestRatePerMinute_ComputesOverSpan(t *testing.T) {
	now := time.Now()
	timestamps := []time.Time{now.Add(-30 * time.Second), now.Add(-15 * time.Second)}

	rate := ratePerMinute(timestamps, now)
	assert.Greater(t, rate, 0.0)
}

func TestSnapshotKey_PerLibrary(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	assert.NotEqual(t, snapshotKey(a), snapshotKey(b))
	assert.Contains(t, snapshotKey(a), a.String())
}

func TestCadenceBounds(t *testing.T) {
	assert.Equal(t, 2*time.Second, minInterval)
	assert.Equal(t, 10, gamesPerFlush)
}

func TestSnapshotTTL(t *testing.T) {
	assert.Equal(t, 1*time.Hour, SnapshotTTL)
}
