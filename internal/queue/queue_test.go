package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListKey_PerQueue(t *testing.T) {
	assert.Equal(t, "queue:high", listKey(High))
	assert.Equal(t, "queue:default", listKey(Default))
	assert.Equal(t, "queue:low", listKey(Low))
}

func TestPriorityOrder_HighFirst(t *testing.T) {
	assert.Equal(t, []Name{High, Default, Low}, priorityOrder)
}

func TestPolicies_MatchContract(t *testing.T) {
	assert.Equal(t, 1, Policies[High].MaxAttempts)
	assert.Equal(t, 2*time.Hour, Policies[High].Timeout)
	assert.Equal(t, 3, Policies[Default].MaxAttempts)
	assert.Equal(t, 5, Policies[Low].MaxAttempts)
}

func TestResultKey_FailureKey_Distinct(t *testing.T) {
	assert.NotEqual(t, resultKey("job-1"), failureKey("job-1"))
	assert.Contains(t, resultKey("job-1"), "job-1")
	assert.Contains(t, failureKey("job-1"), "job-1")
}
