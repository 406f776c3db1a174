package main

import (
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		matchDuration: 60 * time.Second,
		playerGrace:   30 * time.Second,
	}
}

// newTestClient builds a client with no underlying connection; rooms only
// ever touch the send channel, so tests can drive the protocol directly
// through handleMessage and read replies off send.
func newTestClient(id string) *client {
	return &client{
		send:     make(chan any, 64),
		done:     make(chan struct{}),
		playerID: id,
	}
}

// recvMessage reads from the client's outbound queue until a message of
// the wanted type arrives, discarding everything else (ticks, mostly).
func recvMessage[T any](t *testing.T, c *client) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.send:
			if typed, ok := msg.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func createTestRoom(t *testing.T, reg *RoomRegistry, c *client, mode string) string {
	t.Helper()

	c.handleMessage(reg, ClientMessage{Type: "create_room", Mode: mode})

	return recvMessage[RoomCreatedMessage](t, c).RoomID
}

func joinTestRoom(t *testing.T, reg *RoomRegistry, c *client, code string) {
	t.Helper()

	c.handleMessage(reg, ClientMessage{Type: "join_room", RoomID: code})
}
