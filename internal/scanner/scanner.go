// Package scanner runs camera scanning sessions that deliver the first decoded code.
//
// A Session owns one camera stream for its whole life and moves through
// Idle -> RequestingPermission -> (Denied | Active) -> Scanning -> Stopped. The stream
// is closed exactly once on every exit path. A Manager keeps at most one session per
// device and releases the previous holder before a new session may start.
package scanner

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPermissionDenied is returned when the camera refuses access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrCancelled is returned when a session is cancelled before a code is decoded.
	ErrCancelled = errors.New("scan session cancelled")
	// ErrNoCode is returned when the stream ends without a decodable frame.
	ErrNoCode = errors.New("no code found in camera frames")
	// ErrTimeout is returned when the session deadline passes before a decode.
	ErrTimeout = errors.New("scan session timed out")
	// ErrSessionUsed is returned when Run is called on a session that already ran.
	ErrSessionUsed = errors.New("scan session already used")
)

// Camera opens a frame stream. Open returns ErrPermissionDenied when access is refused.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields frames until it returns io.EOF.
type Stream interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder extracts a code from a frame. ok is false when the frame holds no code.
type Decoder interface {
	Decode(frame image.Image) (code string, ok bool)
}

// State is a session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRequestingPermission
	StateDenied
	StateActive
	StateScanning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateDenied:
		return "denied"
	case StateActive:
		return "active"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome labels reported to Options.OnFinish.
const (
	OutcomeDecoded   = "decoded"
	OutcomeDenied    = "denied"
	OutcomeCancelled = "cancelled"
	OutcomeNoCode    = "no_code"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeDecoded
	case errors.Is(err, ErrPermissionDenied):
		return OutcomeDenied
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, ErrNoCode):
		return OutcomeNoCode
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
