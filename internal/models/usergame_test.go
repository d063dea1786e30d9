package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyPlaytime_Increases(t *testing.T) {
	u := &UserGame{TotalPlaytimeMinutes: 100}
	regressed := u.ApplyPlaytime(150)
	assert.False(t, regressed)
	assert.Equal(t, 150, u.TotalPlaytimeMinutes)
}

func TestApplyPlaytime_FlagsRegressionButStillRecordsLowerValue(t *testing.T) {
	u := &UserGame{TotalPlaytimeMinutes: 100}
	regressed := u.ApplyPlaytime(40)
	assert.True(t, regressed)
	assert.Equal(t, 40, u.TotalPlaytimeMinutes)
}

func TestApplyPlaytime_EqualIsNotARegression(t *testing.T) {
	u := &UserGame{TotalPlaytimeMinutes: 100}
	regressed := u.ApplyPlaytime(100)
	assert.False(t, regressed)
	assert.Equal(t, 100, u.TotalPlaytimeMinutes)
}
