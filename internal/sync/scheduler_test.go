package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsQuietHours_Overnight(t *testing.T) {
	s := &Scheduler{config: SchedulerConfig{QuietHoursStart: 23, QuietHoursEnd: 6}}
	assert.True(t, s.isQuietHours(time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)))
	assert.True(t, s.isQuietHours(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)))
	assert.False(t, s.isQuietHours(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestIsQuietHours_SameDay(t *testing.T) {
	s := &Scheduler{config: SchedulerConfig{QuietHoursStart: 1, QuietHoursEnd: 6}}
	assert.True(t, s.isQuietHours(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)))
	assert.False(t, s.isQuietHours(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)))
}

func TestIsQuietHours_Disabled(t *testing.T) {
	s := &Scheduler{config: SchedulerConfig{QuietHoursStart: 3, QuietHoursEnd: 3}}
	assert.False(t, s.isQuietHours(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)))
}

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.SyncInterval)
}
