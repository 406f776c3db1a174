/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol error kinds surfaced over the wire. None of these are fatal to
// the process; each is scoped to the offending room or connection.
const (
	errKindRoomNotFound   = "room_not_found"
	errKindRoomFull       = "room_full"
	errKindInvalidAnswer  = "invalid_answer_format"
	errKindInvalidName    = "invalid_name"
	errKindBadMessage     = "bad_message"
	errKindAlreadyInRoom  = "already_in_room"
	errKindNotInRoom      = "not_in_room"
	errKindMatchNotActive = "match_not_active"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
)

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return errKindRoomFull
	default:
		return errKindRoomNotFound
	}
}

func protocolError(kind, message string) ErrorMessage {
	return ErrorMessage{Type: "error", Kind: kind, Message: message}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
