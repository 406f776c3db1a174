package main

import (
	"math"
	"strings"
)

// scoreArithmetic awards one point for an exact match, zero otherwise.
// Score never decreases on a wrong answer.
func scoreArithmetic(answer int, p Problem) (correct bool, points int) {
	if answer == p.Answer {
		return true, 1
	}
	return false, 0
}

// scoreTyping compares the trimmed submission against the phrase and
// derives a words-per-minute figure from the server-measured elapsed time.
func scoreTyping(text string, p Problem, elapsedSeconds float64) (correct bool, points int, wpm float64) {
	submitted := strings.TrimSpace(text)
	if submitted != strings.TrimSpace(p.Phrase) {
		return false, 0, 0
	}
	return true, 1, typingWPM(len(submitted), elapsedSeconds)
}

// typingWPM approximates words-per-minute as five characters per word.
// A non-positive elapsed time yields 0 rather than dividing by zero.
func typingWPM(chars int, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	wpm := (float64(chars) / elapsedSeconds) * (60.0 / 5.0)
	return math.Round(wpm*10) / 10
}
