package session

import "errors"

// Kind classifies a registry failure.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindCapacity
	KindInvalidMove
	KindNotParticipant
	KindDuplicate
	KindConflict
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	case KindInvalidMove:
		return "invalid_move"
	case KindNotParticipant:
		return "not_participant"
	case KindDuplicate:
		return "duplicate"
	case KindConflict:
		return "conflict"
	case KindInvalidRequest:
		return "invalid_request"
	}
	return "unknown"
}

// Error is a reportable failure. Message is suitable for showing to the
// client that caused it.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrRoomNotFound   = NewError(KindNotFound, "Room not found")
	ErrRoomFull       = NewError(KindCapacity, "Room is full")
	ErrInvalidMove    = NewError(KindInvalidMove, "Invalid move")
	ErrNotParticipant = NewError(KindNotParticipant, "You are not in this game")
	ErrRoomExists     = NewError(KindDuplicate, "Room already exists")
	ErrAlreadySeated  = NewError(KindConflict, "Already in a room")
)

// KindOf returns the Kind carried by err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
