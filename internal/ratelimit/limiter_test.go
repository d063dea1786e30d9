package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSteamPolicy_Defaults(t *testing.T) {
	assert.Equal(t, 100, SteamPolicy.WindowCalls)
	assert.Equal(t, 300*time.Second, SteamPolicy.WindowSeconds)
	assert.Equal(t, 100000, SteamPolicy.DailyCap)
	assert.Equal(t, 0.8, SteamPolicy.BufferFraction)
}

func TestQueueFor_ReturnsSameQueuePerPlatform(t *testing.T) {
	l := New(nil)

	q1 := l.queueFor("steam")
	q2 := l.queueFor("steam")
	q3 := l.queueFor("xbox")

	assert.Same(t, q1, q2)
	assert.NotSame(t, q1, q3)
}

func TestTicketQueue_FIFOOrdering(t *testing.T) {
	q := &ticketQueue{}

	order := make([]int, 0, 3)
	done := make(chan struct{})

	release1, err := q.acquireTurn(context.Background())
	assert.NoError(t, err)

	go func() {
		release2, err := q.acquireTurn(context.Background())
		assert.NoError(t, err)
		order = append(order, 2)
		release2()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	order = append(order, 1)
	release1()

	<-done
	assert.Equal(t, []int{1, 2}, order)
}

func TestErrRateExceededDaily_Message(t *testing.T) {
	assert.Equal(t, "RateExceededDaily", ErrRateExceededDaily.Error())
}
