// Match coordination for two-player duels.
//
// Each room runs a single event loop goroutine. Joins, ready signals,
// answers, name changes, and disconnects are delivered through one channel
// and handled strictly in arrival order, so state transitions can never
// race. The server clock is the sole timing authority: the loop broadcasts
// the start timestamp, emits best-effort per-second ticks, and ends the
// match when its own deadline fires, never when a client says so.

package main

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type roomEvent interface{}

type joinEvent struct {
	c       *client
	name    string
	created bool
	reply   chan error
}

type readyEvent struct {
	c *client
}

type answerEvent struct {
	c     *client
	value int
}

type phraseEvent struct {
	c    *client
	text string
}

type nameEvent struct {
	c    *client
	name string
}

type leaveEvent struct {
	c          *client
	disconnect bool
}

// post delivers an event to the room's loop, or drops it if the room has
// already been removed from the registry.
func (r *Room) post(ev roomEvent) {
	select {
	case r.events <- ev:
	case <-r.stop:
	}
}

func (r *Room) run() {
	for {
		var tickC <-chan time.Time
		if r.ticker != nil {
			tickC = r.ticker.Chan()
		}

		select {
		case <-r.stop:
			if r.ticker != nil {
				r.ticker.Stop()
			}
			r.detachAll()
			return

		case ev := <-r.events:
			r.touch()
			r.handle(ev)

		case <-tickC:
			r.handleTick()

		case <-r.deadline:
			r.finish(-1)

		case <-r.graceC:
			log.Debug().Str("room", r.code).Msg("empty room deleted")
			r.registry.remove(r.code)
		}
	}
}

func (r *Room) handle(ev roomEvent) {
	switch ev := ev.(type) {
	case joinEvent:
		r.handleJoin(ev)
	case readyEvent:
		r.handleReady(ev.c)
	case answerEvent:
		r.handleAnswer(ev.c, ev.value)
	case phraseEvent:
		r.handlePhrase(ev.c, ev.text)
	case nameEvent:
		r.handleName(ev.c, ev.name)
	case leaveEvent:
		r.handleLeave(ev)
	}
}

func (r *Room) sessionOf(c *client) (*session, int) {
	for i, s := range r.sessions {
		if s != nil && s.client == c {
			return s, i
		}
	}
	return nil, -1
}

func (r *Room) opponentOf(slot int) *session {
	return r.sessions[1-slot]
}

func (r *Room) anySession() *session {
	for _, s := range r.sessions {
		if s != nil {
			return s
		}
	}
	return nil
}

func (r *Room) full() bool {
	return r.sessions[0] != nil && r.sessions[1] != nil
}

func (r *Room) broadcast(msg any) {
	for _, s := range r.sessions {
		if s != nil {
			s.client.trySend(msg)
		}
	}
}

func defaultName(playerID string) string {
	id := playerID
	if len(id) > 4 {
		id = id[:4]
	}
	return "P" + id
}

func (r *Room) handleJoin(ev joinEvent) {
	if r.Status() == statusFinished {
		ev.reply <- ErrRoomNotFound
		return
	}
	if s, _ := r.sessionOf(ev.c); s != nil {
		ev.reply <- nil
		return
	}

	slot := -1
	for i, s := range r.sessions {
		if s == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		ev.reply <- ErrRoomFull
		return
	}

	name := strings.TrimSpace(ev.name)
	if name == "" || len(name) > maxNameLength {
		name = defaultName(ev.c.playerID)
	}

	r.sessions[slot] = &session{client: ev.c, slot: slot, name: name}
	ev.c.setRoom(r)
	r.graceC = nil

	if r.full() {
		r.setStatus(statusReadyCheck)
	}

	ev.reply <- nil

	if ev.created {
		ev.c.trySend(RoomCreatedMessage{Type: "room_created", RoomID: r.code, Mode: r.mode})
	}

	for _, s := range r.sessions {
		if s == nil {
			continue
		}
		msg := JoinedMessage{
			Type:   "joined",
			RoomID: r.code,
			Slot:   s.slot,
			Name:   s.name,
		}
		if opp := r.opponentOf(s.slot); opp != nil {
			msg.OpponentPresent = true
			msg.OpponentName = opp.name
		}
		s.client.trySend(msg)
	}

	log.Debug().Str("room", r.code).Str("player", name).Int("slot", slot).Msg("player joined")
}

func (r *Room) handleReady(c *client) {
	s, _ := r.sessionOf(c)
	if s == nil {
		return
	}
	if r.Status() != statusReadyCheck {
		return
	}

	s.ready = true

	if r.sessions[0].ready && r.sessions[1].ready {
		r.startMatch()
	}
}

// startMatch broadcasts a single authoritative start timestamp and arms
// the tick and deadline timers.
func (r *Room) startMatch() {
	r.setStatus(statusActive)
	r.startAt = r.clock.Now()
	r.ticker = r.clock.NewTicker(time.Second)
	r.deadline = r.clock.After(r.duration)

	r.broadcast(MatchStartingMessage{
		Type:            "match_starting",
		StartTimestamp:  r.startAt.UnixMilli(),
		DurationSeconds: int(r.duration / time.Second),
	})

	for _, s := range r.sessions {
		s.score = 0
		s.correct = 0
		s.wrong = 0
		s.attempted = 0
		r.issueProblem(s)
	}

	log.Info().Str("room", r.code).Str("mode", string(r.mode)).Msg("match started")
}

func (r *Room) issueProblem(s *session) {
	s.problem = nextProblem(r.mode, s.lastPhrase)
	s.problemAt = r.clock.Now()
	s.lastPhrase = s.problem.Phrase

	s.client.trySend(NextProblemMessage{Type: "next_problem", Problem: s.problem})
}

// handleTick broadcasts the remaining time. Ticks are best-effort; only
// the deadline decides when the match ends.
func (r *Room) handleTick() {
	if r.Status() != statusActive {
		return
	}

	remaining := r.duration - r.clock.Now().Sub(r.startAt)
	secs := int((remaining + time.Second/2) / time.Second)
	if secs < 0 {
		secs = 0
	}

	r.broadcast(TickMessage{Type: "tick", RemainingSeconds: secs})
}

func (r *Room) handleAnswer(c *client, value int) {
	s, _ := r.sessionOf(c)
	if s == nil {
		return
	}
	if r.Status() != statusActive {
		c.trySend(protocolError(errKindMatchNotActive, "no match in progress"))
		return
	}
	if r.mode != ModeArithmetic {
		c.trySend(protocolError(errKindBadMessage, "this room is in typing mode"))
		return
	}

	correct, points := scoreArithmetic(value, s.problem)
	s.attempted++
	if correct {
		s.correct++
		s.score += points
	} else {
		s.wrong++
	}

	c.trySend(AnswerResultMessage{
		Type:         "answer_result",
		Correct:      correct,
		Points:       points,
		RunningScore: s.score,
	})

	r.issueProblem(s)
}

func (r *Room) handlePhrase(c *client, text string) {
	s, _ := r.sessionOf(c)
	if s == nil {
		return
	}
	if r.Status() != statusActive {
		c.trySend(protocolError(errKindMatchNotActive, "no match in progress"))
		return
	}
	if r.mode != ModeTyping {
		c.trySend(protocolError(errKindBadMessage, "this room is in arithmetic mode"))
		return
	}

	elapsed := r.clock.Now().Sub(s.problemAt).Seconds()
	correct, points, wpm := scoreTyping(text, s.problem, elapsed)
	s.attempted++
	if correct {
		s.correct++
		s.score += points
	} else {
		s.wrong++
	}

	result := AnswerResultMessage{
		Type:         "answer_result",
		Correct:      correct,
		Points:       points,
		RunningScore: s.score,
	}
	if correct {
		result.WPM = &wpm
	}
	c.trySend(result)

	r.issueProblem(s)
}

func (r *Room) handleName(c *client, name string) {
	s, _ := r.sessionOf(c)
	if s == nil {
		return
	}

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		c.trySend(protocolError(errKindInvalidName, "names must be 1-12 characters"))
		return
	}

	s.name = name
	r.broadcast(NameChangedMessage{Type: "name_changed", Slot: s.slot, Name: name})
}

func (r *Room) handleLeave(ev leaveEvent) {
	s, slot := r.sessionOf(ev.c)
	if s == nil {
		return
	}

	switch r.Status() {
	case statusActive:
		// Leaving mid-match forfeits; the remaining player wins outright.
		r.finish(slot)

	case statusFinished:
		r.sessions[slot] = nil
		ev.c.setRoom(nil)

	default:
		r.sessions[slot] = nil

		if opp := r.anySession(); opp != nil {
			opp.ready = false
			r.setStatus(statusWaiting)
			opp.client.trySend(OpponentLeftMessage{Type: "opponent_left"})
		} else if r.grace > 0 {
			r.graceC = r.clock.After(r.grace)
		}

		ev.c.setRoom(nil)

		log.Debug().Str("room", r.code).Str("player", s.name).Bool("disconnect", ev.disconnect).Msg("player left")
	}
}

// finish ends the match, broadcasts the result, and tears the room down.
// forfeitSlot is the slot of the player who left mid-match, or -1 when the
// timer expired naturally. Finished is terminal: no rejoin, no restart.
func (r *Room) finish(forfeitSlot int) {
	if r.Status() != statusActive {
		return
	}

	r.setStatus(statusFinished)
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	r.deadline = nil

	forfeit := forfeitSlot >= 0

	for _, s := range r.sessions {
		if s == nil {
			continue
		}

		msg := MatchFinishedMessage{
			Type:      "match_finished",
			YourScore: s.score,
			Forfeit:   forfeit,
			YourStats: s.stats(),
		}

		opp := r.opponentOf(s.slot)
		if opp != nil {
			msg.OpponentScore = opp.score
			msg.OpponentStats = opp.stats()
		}

		switch {
		case forfeit && s.slot == forfeitSlot:
			msg.Outcome = outcomeLoss
		case forfeit:
			msg.Outcome = outcomeWin
		case opp == nil || s.score > opp.score:
			msg.Outcome = outcomeWin
		case s.score < opp.score:
			msg.Outcome = outcomeLoss
		default:
			msg.Outcome = outcomeDraw
		}

		s.client.trySend(msg)
	}

	log.Info().Str("room", r.code).Bool("forfeit", forfeit).Msg("match finished")

	r.detachAll()
	r.registry.remove(r.code)
}

func (r *Room) detachAll() {
	for i, s := range r.sessions {
		if s == nil {
			continue
		}
		s.client.setRoom(nil)
		r.sessions[i] = nil
	}
}
