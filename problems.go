package main

import (
	"math/rand/v2"
)

type Mode string

const (
	ModeArithmetic Mode = "arithmetic"
	ModeTyping     Mode = "typing"
)

func parseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeArithmetic, "":
		return ModeArithmetic, true
	case ModeTyping:
		return ModeTyping, true
	}
	return "", false
}

const (
	opAdd      = "+"
	opSubtract = "-"
	opMultiply = "×"
	opDivide   = "÷"
)

var arithmeticOps = []string{opAdd, opSubtract, opMultiply, opDivide}

// Problem is generated per question and never persisted. The answer stays
// server-side; json tags shape what the client is shown.
type Problem struct {
	A      int    `json:"a,omitempty"`
	B      int    `json:"b,omitempty"`
	Op     string `json:"op,omitempty"`
	Answer int    `json:"-"`
	Phrase string `json:"phrase,omitempty"`
}

var phrasePool = []string{
	"Hello world!",
	"Typing is fun.",
	"Practice makes perfect.",
	"Keep going!",
	"I love learning new things.",
	"Small steps every day.",
	"Focus and type fast!",
}

func twoDigit() int {
	return 10 + rand.IntN(90)
}

// nextArithmetic draws two-digit operands and a random operator.
// Subtraction orders the operands so the answer is never negative, and
// division redraws until the operands divide evenly.
func nextArithmetic() Problem {
	op := arithmeticOps[rand.IntN(len(arithmeticOps))]
	a, b := twoDigit(), twoDigit()

	switch op {
	case opSubtract:
		if a < b {
			a, b = b, a
		}
		return Problem{A: a, B: b, Op: op, Answer: a - b}
	case opMultiply:
		return Problem{A: a, B: b, Op: op, Answer: a * b}
	case opDivide:
		for a%b != 0 {
			a, b = twoDigit(), twoDigit()
		}
		return Problem{A: a, B: b, Op: op, Answer: a / b}
	default:
		return Problem{A: a, B: b, Op: opAdd, Answer: a + b}
	}
}

// nextPhrase picks a phrase from the pool, never repeating the previous one.
func nextPhrase(previous string) Problem {
	phrase := phrasePool[rand.IntN(len(phrasePool))]
	for len(phrasePool) > 1 && phrase == previous {
		phrase = phrasePool[rand.IntN(len(phrasePool))]
	}
	return Problem{Phrase: phrase}
}

func nextProblem(mode Mode, previous string) Problem {
	if mode == ModeTyping {
		return nextPhrase(previous)
	}
	return nextArithmetic()
}
