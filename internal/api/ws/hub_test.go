package ws

import (
	"testing"
	"time"
)

type fakeClient struct {
	send   chan []byte
	closed bool
}

func newFakeClient() *fakeClient { return &fakeClient{send: make(chan []byte, 4)} }

func (f *fakeClient) sendChannel() chan []byte { return f.send }
func (f *fakeClient) close()                   { f.closed = true }

func TestHub_BroadcastDeliversToRegisteredClients(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	c := newFakeClient()
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	h.Broadcast(Event{Type: "reflection_completed", SessionID: "s1"})

	select {
	case msg := <-c.send:
		if len(msg) == 0 {
			t.Fatal("expected non-empty broadcast payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	c := newFakeClient()
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	h.unregister <- c
	time.Sleep(10 * time.Millisecond)

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected send channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestHub_BroadcastDoesNotBlockWhenBufferFull(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	for i := 0; i < 300; i++ {
		h.Broadcast(Event{Type: "tier_migrated"})
	}
	// No assertion beyond "this returns" — Broadcast must never block the
	// caller even when the internal buffer is saturated.
}
