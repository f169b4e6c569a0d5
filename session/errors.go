package session

import (
	"errors"
	"fmt"

	"github.com/go-spdy/spdymux/frame"
)

// StreamError scopes a protocol violation to a single stream (spec §4.6):
// the stream is removed and an RST_STREAM with Status is emitted. The
// handler builds it after performing the RST_STREAM/removal side effects;
// HandleInbound and HandleOutbound do not return it to their callers.
type StreamError struct {
	StreamID frame.StreamId
	Status   frame.RstStreamStatus
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("spdymux: stream %d reset: %s", e.StreamID, e.Status)
}

// SessionError scopes a protocol violation to the whole session (spec §4.6):
// GOAWAY is emitted and the transport is closed. HandleInbound and
// HandleOutbound return it only when they recover a panic from a per-frame
// handler; a session error raised by frame validation (such as a
// non-increasing SYN_STREAM id) is not returned. Side effects have already
// happened by the time it is returned.
type SessionError struct {
	Status frame.GoAwayStatus
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("spdymux: session terminated: %s", e.Status)
}

// ErrProtocolViolation is returned by HandleOutbound when the application
// asked for a frame the outbound contract forbids (spec §4.2, §7). Unlike
// StreamError/SessionError it never mutates session state — the caller's
// write simply fails.
var ErrProtocolViolation = errors.New("spdymux: outbound contract violation")

// ErrClosed names a finished session. No Handler method returns it;
// operations attempted after Close are not rejected with it.
var ErrClosed = errors.New("spdymux: session closed")
