package main

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Messages coming from clients, as a single tagged union validated at the
// boundary before dispatch to a room.
type ClientMessage struct {
	Type   string          `json:"type"`             // "create_room", "join_room", "ready", "submit_answer", "submit_phrase", "set_name", "leave"
	Mode   string          `json:"mode,omitempty"`   // create_room: "arithmetic" or "typing"
	RoomID string          `json:"roomId,omitempty"` // join_room
	Name   string          `json:"name,omitempty"`   // create_room / join_room / set_name
	Value  json.RawMessage `json:"value,omitempty"`  // submit_answer
	Text   string          `json:"text,omitempty"`   // submit_phrase
}

// parseAnswer accepts a bare JSON number or a numeric string.
func parseAnswer(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		return v, true
	}

	return 0, false
}

// Messages sent to clients
type RoomCreatedMessage struct {
	Type   string `json:"type"` // "room_created"
	RoomID string `json:"roomId"`
	Mode   Mode   `json:"mode"`
}

// JoinedMessage is sent to every player in the room whenever a slot fills.
type JoinedMessage struct {
	Type            string `json:"type"` // "joined"
	RoomID          string `json:"roomId"`
	Slot            int    `json:"slot"`
	Name            string `json:"name"`
	OpponentPresent bool   `json:"opponentPresent"`
	OpponentName    string `json:"opponentName,omitempty"`
}

// MatchStartingMessage carries the single authoritative start timestamp,
// identical for both peers.
type MatchStartingMessage struct {
	Type            string `json:"type"` // "match_starting"
	StartTimestamp  int64  `json:"startTimestamp"` // unix milliseconds, server clock
	DurationSeconds int    `json:"durationSeconds"`
}

type TickMessage struct {
	Type             string `json:"type"` // "tick"
	RemainingSeconds int    `json:"remainingSeconds"`
}

type AnswerResultMessage struct {
	Type         string   `json:"type"` // "answer_result"
	Correct      bool     `json:"correct"`
	Points       int      `json:"points"`
	RunningScore int      `json:"runningScore"`
	WPM          *float64 `json:"wpm,omitempty"` // typing mode only
}

type NextProblemMessage struct {
	Type    string  `json:"type"` // "next_problem"
	Problem Problem `json:"problem"`
}

// PlayerStats summarizes one player's attempts for the final result.
type PlayerStats struct {
	Correct   int `json:"correct"`
	Wrong     int `json:"wrong"`
	Attempted int `json:"attempted"`
}

type MatchFinishedMessage struct {
	Type          string      `json:"type"` // "match_finished"
	YourScore     int         `json:"yourScore"`
	OpponentScore int         `json:"opponentScore"`
	Outcome       string      `json:"outcome"` // "win", "loss", or "draw"
	Forfeit       bool        `json:"forfeit"`
	YourStats     PlayerStats `json:"yourStats"`
	OpponentStats PlayerStats `json:"opponentStats"`
}

type NameChangedMessage struct {
	Type string `json:"type"` // "name_changed"
	Slot int    `json:"slot"`
	Name string `json:"name"`
}

type OpponentLeftMessage struct {
	Type string `json:"type"` // "opponent_left"
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

const (
	outcomeWin  = "win"
	outcomeLoss = "loss"
	outcomeDraw = "draw"
)
