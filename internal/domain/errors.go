// Package domain holds the core SyncRoom data model: rooms, participants,
// chat messages, and the playback clock. It has no dependency on the
// gateway, registry, or SFU packages so it can be imported by all of them.
package domain

import "fmt"

// Code is the error taxonomy from the room coordination protocol. It is
// carried back to clients verbatim in ack replies.
type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeForbidden     Code = "forbidden"
	CodeLocked        Code = "locked"
	CodeCannotConsume Code = "cannot_consume"
	CodeTimeout       Code = "timeout"
	CodeInternal      Code = "internal"
	CodeBadRequest    Code = "bad_request"
	CodeUnknownEvent  Code = "unknown_event"
)

// Error is a typed protocol error. It implements error so it can flow
// through normal Go error handling, but handlers use Code to decide what
// to send back on the ack channel.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an Error with an explicit message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Sentinel errors for the common cases, matching the code the whole
// protocol converts them to.
var (
	ErrRoomNotFound    = &Error{Code: CodeNotFound, Message: "room not found"}
	ErrMessageNotFound = &Error{Code: CodeNotFound, Message: "message not found"}
	ErrLocked          = &Error{Code: CodeLocked, Message: "room is locked"}
	ErrForbidden       = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrNotInCall       = &Error{Code: CodeNotFound, Message: "not in this call"}
	ErrCannotConsume   = &Error{Code: CodeCannotConsume, Message: "router cannot consume this producer"}
	ErrTimeout         = &Error{Code: CodeTimeout, Message: "request timed out"}
)
