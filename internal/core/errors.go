package core

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the machine-readable category of a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindNetwork
	KindTimeout
	KindValidation
	KindConflict
	KindNotFound
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindAuthentication: "unauthorized",
	KindNetwork:        "network",
	KindTimeout:        "timeout",
	KindValidation:     "validation",
	KindConflict:       "conflict",
	KindNotFound:       "not_found",
	KindInternal:       "internal",
}

func (k Kind) String() string { return kindNames[k] }

// ParseKind maps a wire code back to a Kind.
func ParseKind(code string) Kind {
	for k, name := range kindNames {
		if name == code {
			return k
		}
	}
	return KindUnknown
}

var (
	ErrAuthentication = errors.New("authentication required")
	ErrNetwork        = errors.New("network error")
	ErrTimeout        = errors.New("request timed out")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("edit conflict")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")

	// ErrSuperseded is returned to the caller of a mutation whose result
	// arrived after a newer mutation on the same entity started.
	ErrSuperseded = errors.New("mutation superseded")
	// ErrForgotten is returned when the playlist was closed while its
	// mutation was in flight.
	ErrForgotten = errors.New("playlist closed during mutation")
	// ErrClosed is returned by a session after logout.
	ErrClosed = errors.New("session closed")
	// ErrReconnectExhausted is reported when automatic reconnection gives up.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

var sentinels = map[Kind]error{
	KindAuthentication: ErrAuthentication,
	KindNetwork:        ErrNetwork,
	KindTimeout:        ErrTimeout,
	KindValidation:     ErrValidation,
	KindConflict:       ErrConflict,
	KindNotFound:       ErrNotFound,
	KindInternal:       ErrInternal,
}

// Error is a categorized failure of an operation against the store or relay.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// E builds a categorized error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the category of err. Context expiry counts as a timeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}
