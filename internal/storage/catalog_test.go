package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jimsantora/librarysync/internal/models"
	"github.com/jimsantora/librarysync/internal/platform"
)

func TestValidateNormalizedGame_RequiresTitle(t *testing.T) {
	err := validateNormalizedGame(platform.NormalizedGame{})
	assert.Error(t, err)
}

func TestValidateNormalizedGame_RejectsOutOfRangeMetacritic(t *testing.T) {
	bad := 150
	err := validateNormalizedGame(platform.NormalizedGame{Title: "Half-Life", MetacriticScore: &bad})
	assert.Error(t, err)
}

func TestValidateNormalizedGame_AcceptsValid(t *testing.T) {
	good := 96
	err := validateNormalizedGame(platform.NormalizedGame{Title: "Half-Life", MetacriticScore: &good})
	assert.NoError(t, err)
}

func TestGameStatusFor(t *testing.T) {
	assert.Equal(t, models.GameStatusUnplayed, gameStatusFor(0))
	assert.Equal(t, models.GameStatusPlaying, gameStatusFor(1))
}

func TestSameTime(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	assert.True(t, sameTime(nil, nil))
	assert.False(t, sameTime(&now, nil))
	assert.False(t, sameTime(nil, &now))
	assert.True(t, sameTime(&now, &now))
	assert.False(t, sameTime(&now, &later))
}

func TestContainsString(t *testing.T) {
	assert.True(t, containsString([]string{"steam", "gog"}, "gog"))
	assert.False(t, containsString([]string{"steam"}, "gog"))
	assert.False(t, containsString(nil, "gog"))
}
