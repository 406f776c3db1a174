package main

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// pairUp creates a room via player a and joins player b, consuming the
// initial joined notifications on both sides.
func pairUp(t *testing.T, reg *RoomRegistry, mode string) (a, b *client, code string) {
	t.Helper()

	a = newTestClient("player-a")
	b = newTestClient("player-b")

	code = createTestRoom(t, reg, a, mode)
	recvMessage[JoinedMessage](t, a)

	joinTestRoom(t, reg, b, code)
	recvMessage[JoinedMessage](t, b)
	recvMessage[JoinedMessage](t, a)

	return a, b, code
}

// readyUp signals ready for both players and returns their start messages.
func readyUp(t *testing.T, reg *RoomRegistry, a, b *client) (MatchStartingMessage, MatchStartingMessage) {
	t.Helper()

	a.handleMessage(reg, ClientMessage{Type: "ready"})
	b.handleMessage(reg, ClientMessage{Type: "ready"})

	return recvMessage[MatchStartingMessage](t, a), recvMessage[MatchStartingMessage](t, b)
}

func answerValue(n int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(n))
}

func TestSecondJoinTransitionsToReadyCheck(t *testing.T) {
	reg := newRoomRegistry(testConfig(), clockwork.NewFakeClock())

	a := newTestClient("player-a")
	code := createTestRoom(t, reg, a, "")

	first := recvMessage[JoinedMessage](t, a)
	if first.OpponentPresent {
		t.Fatal("creator should start alone")
	}

	room, err := reg.Find(code)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := room.Status(); got != statusWaiting {
		t.Fatalf("status after first join: got %q, want %q", got, statusWaiting)
	}

	b := newTestClient("player-b")
	joinTestRoom(t, reg, b, strings.ToLower(code))

	joined := recvMessage[JoinedMessage](t, b)
	if !joined.OpponentPresent {
		t.Fatal("second player should see an opponent")
	}
	updated := recvMessage[JoinedMessage](t, a)
	if !updated.OpponentPresent {
		t.Fatal("first player should be told the opponent arrived")
	}

	if got := room.Status(); got != statusReadyCheck {
		t.Fatalf("status after second join: got %q, want %q", got, statusReadyCheck)
	}
}

func TestThirdJoinGetsRoomFull(t *testing.T) {
	reg := newRoomRegistry(testConfig(), clockwork.NewFakeClock())

	_, _, code := pairUp(t, reg, "")

	c := newTestClient("player-c")
	joinTestRoom(t, reg, c, code)

	errMsg := recvMessage[ErrorMessage](t, c)
	if errMsg.Kind != errKindRoomFull {
		t.Fatalf("error kind: got %q, want %q", errMsg.Kind, errKindRoomFull)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	reg := newRoomRegistry(testConfig(), clockwork.NewFakeClock())

	c := newTestClient("player-c")
	joinTestRoom(t, reg, c, "NOPE")

	errMsg := recvMessage[ErrorMessage](t, c)
	if errMsg.Kind != errKindRoomNotFound {
		t.Fatalf("error kind: got %q, want %q", errMsg.Kind, errKindRoomNotFound)
	}
}

func TestBothReadyBroadcastsIdenticalStart(t *testing.T) {
	reg := newRoomRegistry(testConfig(), clockwork.NewFakeClock())

	a, b, _ := pairUp(t, reg, "")
	sa, sb := readyUp(t, reg, a, b)

	if sa.StartTimestamp != sb.StartTimestamp {
		t.Fatalf("start timestamps differ: %d vs %d", sa.StartTimestamp, sb.StartTimestamp)
	}
	if sa.DurationSeconds != 60 {
		t.Fatalf("duration: got %d, want 60", sa.DurationSeconds)
	}

	// Both players get their first problem once the match starts.
	recvMessage[NextProblemMessage](t, a)
	recvMessage[NextProblemMessage](t, b)
}

func TestSilentMatchEndsInDraw(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := newRoomRegistry(testConfig(), clock)

	a, b, code := pairUp(t, reg, "")
	readyUp(t, reg, a, b)
	recvMessage[NextProblemMessage](t, a)
	recvMessage[NextProblemMessage](t, b)

	clock.Advance(60 * time.Second)

	fa := recvMessage[MatchFinishedMessage](t, a)
	fb := recvMessage[MatchFinishedMessage](t, b)

	for _, f := range []MatchFinishedMessage{fa, fb} {
		if f.YourScore != 0 || f.OpponentScore != 0 {
			t.Fatalf("scores: got %d-%d, want 0-0", f.YourScore, f.OpponentScore)
		}
		if f.Outcome != outcomeDraw {
			t.Fatalf("outcome: got %q, want %q", f.Outcome, outcomeDraw)
		}
		if f.Forfeit {
			t.Fatal("natural expiry should not be a forfeit")
		}
	}

	// Finished is terminal: the room is gone and both players detached.
	waitFor(t, "room teardown", func() bool {
		_, err := reg.Find(code)
		return errors.Is(err, ErrRoomNotFound)
	})
	waitFor(t, "players detached", func() bool {
		return a.getRoom() == nil && b.getRoom() == nil
	})
}

func TestTenCorrectAnswersScoreTen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := newRoomRegistry(testConfig(), clock)

	a, b, _ := pairUp(t, reg, "")
	readyUp(t, reg, a, b)

	for i := 0; i < 10; i++ {
		problem := recvMessage[NextProblemMessage](t, a).Problem
		a.handleMessage(reg, ClientMessage{Type: "submit_answer", Value: answerValue(problem.Answer)})

		result := recvMessage[AnswerResultMessage](t, a)
		if !result.Correct || result.Points != 1 {
			t.Fatalf("answer %d: got correct=%v points=%d", i, result.Correct, result.Points)
		}
		// Score is monotonically non-decreasing over the match.
		if result.RunningScore != i+1 {
			t.Fatalf("running score after answer %d: got %d, want %d", i, result.RunningScore, i+1)
		}
	}

	clock.Advance(60 * time.Second)

	fa := recvMessage[MatchFinishedMessage](t, a)
	if fa.YourScore != 10 || fa.Outcome != outcomeWin {
		t.Fatalf("final for a: got score=%d outcome=%q", fa.YourScore, fa.Outcome)
	}
	if fa.YourStats.Correct != 10 || fa.YourStats.Attempted != 10 {
		t.Fatalf("stats for a: %+v", fa.YourStats)
	}

	fb := recvMessage[MatchFinishedMessage](t, b)
	if fb.OpponentScore != 10 || fb.Outcome != outcomeLoss {
		t.Fatalf("final for b: got opponent=%d outcome=%q", fb.OpponentScore, fb.Outcome)
	}
}

func TestWrongAnswerNeverDecrementsScore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := newRoomRegistry(testConfig(), clock)

	a, b, _ := pairUp(t, reg, "")
	readyUp(t, reg, a, b)

	problem := recvMessage[NextProblemMessage](t, a).Problem
	a.handleMessage(reg, ClientMessage{Type: "submit_answer", Value: answerValue(problem.Answer + 1)})

	result := recvMessage[AnswerResultMessage](t, a)
	if result.Correct || result.Points != 0 || result.RunningScore != 0 {
		t.Fatalf("wrong answer: got %+v", result)
	}

	clock.Advance(60 * time.Second)

	fa := recvMessage[MatchFinishedMessage](t, a)
	if fa.YourScore != 0 || fa.YourStats.Wrong != 1 || fa.YourStats.Attempted != 1 {
		t.Fatalf("final for a: score=%d stats=%+v", fa.YourScore, fa.YourStats)
	}
	_ = b
}

func TestDisconnectMidMatchForfeits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := newRoomRegistry(testConfig(), clock)

	a, b, code := pairUp(t, reg, "")
	readyUp(t, reg, a, b)
	recvMessage[NextProblemMessage](t, a)

	// Put the soon-to-disconnect player ahead on points.
	for i := 0; i < 2; i++ {
		problem := recvMessage[NextProblemMessage](t, b).Problem
		b.handleMessage(reg, ClientMessage{Type: "submit_answer", Value: answerValue(problem.Answer)})
		recvMessage[AnswerResultMessage](t, b)
	}

	clock.Advance(30 * time.Second)

	// Simulate b's connection dropping.
	if room := b.getRoom(); room != nil {
		room.post(leaveEvent{c: b, disconnect: true})
	}
	close(b.done)

	fa := recvMessage[MatchFinishedMessage](t, a)
	if !fa.Forfeit {
		t.Fatal("expected a forfeit result")
	}
	if fa.Outcome != outcomeWin {
		t.Fatalf("outcome: got %q, want %q despite trailing score", fa.Outcome, outcomeWin)
	}
	if fa.YourScore != 0 || fa.OpponentScore != 2 {
		t.Fatalf("scores: got %d-%d, want 0-2", fa.YourScore, fa.OpponentScore)
	}

	waitFor(t, "room teardown", func() bool {
		_, err := reg.Find(code)
		return errors.Is(err, ErrRoomNotFound)
	})
}

func TestInvalidAnswerIsNotAnAttempt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := newRoomRegistry(testConfig(), clock)

	a, b, _ := pairUp(t, reg, "")
	readyUp(t, reg, a, b)

	a.handleMessage(reg, ClientMessage{Type: "submit_answer", Value: json.RawMessage(`"abc"`)})

	errMsg := recvMessage[ErrorMessage](t, a)
	if errMsg.Kind != errKindInvalidAnswer {
		t.Fatalf("error kind: got %q, want %q", errMsg.Kind, errKindInvalidAnswer)
	}

	clock.Advance(60 * time.Second)

	fa := recvMessage[MatchFinishedMessage](t, a)
	if fa.YourStats.Attempted != 0 {
		t.Fatalf("invalid answer counted as an attempt: %+v", fa.YourStats)
	}
	_ = b
}

func TestTypingModeScoresWPM(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := newRoomRegistry(testConfig(), clock)

	a, b, _ := pairUp(t, reg, "typing")
	readyUp(t, reg, a, b)

	problem := recvMessage[NextProblemMessage](t, a).Problem
	if problem.Phrase == "" {
		t.Fatal("typing mode should issue phrases")
	}

	clock.Advance(5 * time.Second)

	a.handleMessage(reg, ClientMessage{Type: "submit_phrase", Text: problem.Phrase})

	result := recvMessage[AnswerResultMessage](t, a)
	if !result.Correct || result.RunningScore != 1 {
		t.Fatalf("phrase result: %+v", result)
	}
	if result.WPM == nil {
		t.Fatal("correct phrase should carry a wpm figure")
	}
	want := typingWPM(len(strings.TrimSpace(problem.Phrase)), 5)
	if *result.WPM != want {
		t.Fatalf("wpm: got %v, want %v", *result.WPM, want)
	}

	next := recvMessage[NextProblemMessage](t, a).Problem
	if next.Phrase == problem.Phrase {
		t.Fatal("phrase repeated immediately")
	}
}

func TestLeaveBeforeStartRevertsToWaiting(t *testing.T) {
	reg := newRoomRegistry(testConfig(), clockwork.NewFakeClock())

	a, b, code := pairUp(t, reg, "")

	a.handleMessage(reg, ClientMessage{Type: "ready"})
	a.handleMessage(reg, ClientMessage{Type: "leave"})

	recvMessage[OpponentLeftMessage](t, b)

	room, err := reg.Find(code)
	if err != nil {
		t.Fatalf("room should survive a pre-match leave: %v", err)
	}
	if got := room.Status(); got != statusWaiting {
		t.Fatalf("status: got %q, want %q", got, statusWaiting)
	}
	waitFor(t, "leaver detached", func() bool { return a.getRoom() == nil })

	// The room can be filled again and started fresh.
	c := newTestClient("player-c")
	joinTestRoom(t, reg, c, code)
	recvMessage[JoinedMessage](t, c)

	b.handleMessage(reg, ClientMessage{Type: "ready"})
	c.handleMessage(reg, ClientMessage{Type: "ready"})

	recvMessage[MatchStartingMessage](t, b)
	recvMessage[MatchStartingMessage](t, c)
}

func TestSetNameBroadcasts(t *testing.T) {
	reg := newRoomRegistry(testConfig(), clockwork.NewFakeClock())

	a, b, _ := pairUp(t, reg, "")

	a.handleMessage(reg, ClientMessage{Type: "set_name", Name: "Ada"})

	na := recvMessage[NameChangedMessage](t, a)
	nb := recvMessage[NameChangedMessage](t, b)
	if na.Name != "Ada" || nb.Name != "Ada" {
		t.Fatalf("broadcast names: got %q / %q", na.Name, nb.Name)
	}

	a.handleMessage(reg, ClientMessage{Type: "set_name", Name: "much too long a name"})

	errMsg := recvMessage[ErrorMessage](t, a)
	if errMsg.Kind != errKindInvalidName {
		t.Fatalf("error kind: got %q, want %q", errMsg.Kind, errKindInvalidName)
	}
}
