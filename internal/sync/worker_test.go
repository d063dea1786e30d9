package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jimsantora/librarysync/internal/ratelimit"
)

func TestPercentOf(t *testing.T) {
	assert.Equal(t, 0, percentOf(0, 0))
	assert.Equal(t, 50, percentOf(50, 100))
	assert.Equal(t, 100, percentOf(150, 100))
}

func TestPolicyFor_FallsBackToSteamDefault(t *testing.T) {
	w := New(Config{Policies: map[string]ratelimit.Policy{}})
	assert.Equal(t, ratelimit.SteamPolicy, w.policyFor("steam"))
	assert.Equal(t, ratelimit.SteamPolicy, w.policyFor("unknown-platform"))
}

func TestPolicyFor_UsesConfiguredOverride(t *testing.T) {
	custom := ratelimit.Policy{WindowCalls: 5, WindowSeconds: 60, DailyCap: 500, BufferFraction: 0.5}
	w := New(Config{Policies: map[string]ratelimit.Policy{"gog": custom}})
	assert.Equal(t, custom, w.policyFor("gog"))
}
