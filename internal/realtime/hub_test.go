package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return &Client{
		send:  make(chan Envelope, 8),
		rooms: make(map[string]struct{}),
	}
}

func TestHub_JoinAndBroadcast(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := newTestClient()
	h.register <- c
	time.Sleep(5 * time.Millisecond)

	h.requests <- inbound{kind: "join", client: c, room: "library:abc"}
	time.Sleep(5 * time.Millisecond)

	h.Publish("library:abc", EventSyncProgress, map[string]int{"gamesProcessed": 10})

	select {
	case env := <-c.send:
		assert.Equal(t, EventSyncProgress, env.Type)
		assert.Equal(t, uint64(1), env.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHub_SequenceNumbersMonotonicPerRoom(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := newTestClient()
	h.register <- c
	time.Sleep(5 * time.Millisecond)
	h.requests <- inbound{kind: "join", client: c, room: "library:xyz"}
	time.Sleep(5 * time.Millisecond)

	h.Publish("library:xyz", EventGameAdded, nil)
	h.Publish("library:xyz", EventGameAdded, nil)
	h.Publish("library:xyz", EventGameAdded, nil)

	var ids []uint64
	for i := 0; i < 3; i++ {
		select {
		case env := <-c.send:
			ids = append(ids, env.ID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast")
		}
	}

	require.Len(t, ids, 3)
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestHub_BroadcastToEmptyRoomDoesNothing(t *testing.T) {
	h := NewHub()
	go h.Run()

	h.Publish("library:nobody-home", EventSyncStarted, nil)
	time.Sleep(20 * time.Millisecond)
}

func TestLibraryRoom(t *testing.T) {
	assert.Equal(t, "library:abc-123", LibraryRoom("abc-123"))
}
