package main

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type roomStatus string

const (
	statusWaiting    roomStatus = "waiting"
	statusReadyCheck roomStatus = "ready"
	statusActive     roomStatus = "active"
	statusFinished   roomStatus = "finished"
)

const maxNameLength = 12

// session holds one player's state for the duration of a room. It is owned
// exclusively by the room's event loop.
type session struct {
	client     *client
	slot       int
	name       string
	ready      bool
	score      int
	correct    int
	wrong      int
	attempted  int
	problem    Problem
	problemAt  time.Time
	lastPhrase string
}

func (s *session) stats() PlayerStats {
	return PlayerStats{
		Correct:   s.correct,
		Wrong:     s.wrong,
		Attempted: s.attempted,
	}
}

// Room pairs up to two players for a single match. All room state below
// the mutex line is owned by the run loop; events arrive strictly in order
// through a single channel, so no two events for the same room are ever
// handled concurrently.
type Room struct {
	code     string
	mode     Mode
	duration time.Duration
	grace    time.Duration

	clock    clockwork.Clock
	registry *RoomRegistry

	events chan roomEvent
	stop   chan struct{}

	sessions [2]*session
	startAt  time.Time
	ticker   clockwork.Ticker
	deadline <-chan time.Time
	graceC   <-chan time.Time

	// Guarded by mu for reads from outside the run loop (registry reaper).
	mu         sync.RWMutex
	status     roomStatus
	createdAt  time.Time
	lastActive time.Time
}

func (r *Room) Status() roomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.status
}

func (r *Room) setStatus(s roomStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = s
}

func (r *Room) touch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = r.clock.Now()
}

func (r *Room) idleSince(cutoff time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastActive.Before(cutoff)
}

// RoomRegistry maps room codes to live rooms. It owns room creation and
// deletion; everything in between belongs to the room's own event loop.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	clock       clockwork.Clock
	duration    time.Duration
	grace       time.Duration
	idleTimeout time.Duration
}

func newRoomRegistry(cfg *Config, clock clockwork.Clock) *RoomRegistry {
	reg := &RoomRegistry{
		rooms:       make(map[string]*Room),
		clock:       clock,
		duration:    cfg.matchDuration,
		grace:       cfg.playerGrace,
		idleTimeout: cfg.roomTimeout,
	}

	if reg.idleTimeout > 0 {
		go reg.reaperLoop()
	}

	return reg
}

const (
	roomCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength  = 4
)

// newRoomCodeLocked generates a crypto-random room code and ensures it
// doesn't collide with existing rooms. Codes are stored upper-cased so
// lookup is case-insensitive.
func (reg *RoomRegistry) newRoomCodeLocked() string {
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeLetters[int(buf[i])%len(roomCodeLetters)]
		}
		code := string(out)

		if _, exists := reg.rooms[code]; !exists {
			return code
		}
	}
}

// Create inserts an empty room in the waiting state and starts its event
// loop. An unclaimed room is deleted after the grace period.
func (reg *RoomRegistry) Create(mode Mode) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	now := reg.clock.Now()
	room := &Room{
		code:       reg.newRoomCodeLocked(),
		mode:       mode,
		duration:   reg.duration,
		grace:      reg.grace,
		clock:      reg.clock,
		registry:   reg,
		events:     make(chan roomEvent, 16),
		stop:       make(chan struct{}),
		status:     statusWaiting,
		createdAt:  now,
		lastActive: now,
	}
	if reg.grace > 0 {
		room.graceC = reg.clock.After(reg.grace)
	}

	reg.rooms[room.code] = room
	go room.run()

	log.Debug().Str("room", room.code).Str("mode", string(mode)).Msg("room created")

	return room
}

func (reg *RoomRegistry) Find(code string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

func (reg *RoomRegistry) remove(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[code]
	if !ok {
		return
	}

	delete(reg.rooms, code)
	close(room.stop)
}

// reaperLoop periodically removes rooms that have been idle longer than
// the configured timeout.
func (reg *RoomRegistry) reaperLoop() {
	ticker := reg.clock.NewTicker(reg.idleTimeout / 2)
	defer ticker.Stop()

	for range ticker.Chan() {
		cutoff := reg.clock.Now().Add(-reg.idleTimeout)

		reg.mu.Lock()
		for code, room := range reg.rooms {
			if room.idleSince(cutoff) {
				delete(reg.rooms, code)
				close(room.stop)
				log.Debug().Str("room", code).Msg("idle room reaped")
			}
		}
		reg.mu.Unlock()
	}
}
