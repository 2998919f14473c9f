package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesOnlyThreadSubscribers(t *testing.T) {
	h := NewHub()
	a, b, other := NewClient(), NewClient(), NewClient()
	h.Subscribe(1, a)
	h.Subscribe(1, b)
	h.Subscribe(2, other)

	h.Broadcast(1, Event{Type: EventMessage, Payload: map[string]string{"text": "hi"}})

	for _, c := range []Client{a, b} {
		select {
		case raw := <-c:
			var ev struct {
				Type    string            `json:"type"`
				Payload map[string]string `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(raw, &ev))
			assert.Equal(t, EventMessage, ev.Type)
			assert.Equal(t, "hi", ev.Payload["text"])
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}

	select {
	case <-other:
		t.Fatal("event leaked to another thread")
	default:
	}
}

func TestUnsubscribeClosesAndCleansUp(t *testing.T) {
	h := NewHub()
	c := NewClient()
	h.Subscribe(5, c)
	assert.Equal(t, 1, h.Subscribers(5))

	h.Unsubscribe(5, c)
	_, open := <-c
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers(5))

	// Second unsubscribe must not double-close.
	h.Unsubscribe(5, c)
}

func TestBroadcastDoesNotBlockOnFullClient(t *testing.T) {
	h := NewHub()
	c := make(Client)
	h.Subscribe(3, c)
	h.Broadcast(3, Event{Type: EventMessage})
}

func TestCloseThread(t *testing.T) {
	h := NewHub()
	a, b := NewClient(), NewClient()
	h.Subscribe(9, a)
	h.Subscribe(9, b)

	h.CloseThread(9)

	_, openA := <-a
	_, openB := <-b
	assert.False(t, openA)
	assert.False(t, openB)
	assert.Equal(t, 0, h.Subscribers(9))
}
