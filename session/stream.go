package session

import (
	"golang.org/x/sync/semaphore"

	"github.com/go-spdy/spdymux/frame"
)

// StreamEntry is the per-stream record spec.md §3 describes: priority,
// half-close flags, windows (with bound), and the FIFO of writes stalled by
// flow control. All fields are guarded by the session lock or the
// flow-control lock (see Handler), never accessed without one held.
type StreamEntry struct {
	id       frame.StreamId
	priority uint8 // 3 bits, 0 highest

	remoteClosed  bool
	localClosed   bool
	receivedReply bool // locally-initiated streams only

	// sendWindow/recvWindow/recvWindowLowerBound are modeled as int64 so
	// SETTINGS-induced deltas and overflow checks against the 32-bit
	// boundary (spec §8: max send window is INT32_MAX) can be detected
	// without wrapping; legal values always fit in an int32.
	sendWindow           int64
	recvWindow           int64
	recvWindowLowerBound int64

	pendingWrites dataQueue

	// admitSem is the semaphore instance this stream's admission permit was
	// acquired from (nil if no concurrency cap was in effect at admission
	// time). Released exactly once, against this same instance, when the
	// stream is removed — see admit.go.
	admitSem *semaphore.Weighted
}

// dataQueue is a FIFO of outbound DATA frames deferred by flow control
// (spec §3 invariant 5: non-empty only while sendWindow <= 0). The head
// frame is mutated in place as it is partially drained (spec §4.5) so no
// byte is ever emitted twice.
type dataQueue struct {
	frames []*frame.DataFrame
}

func (q *dataQueue) empty() bool { return len(q.frames) == 0 }

func (q *dataQueue) push(f *frame.DataFrame) {
	q.frames = append(q.frames, f)
}

func (q *dataQueue) front() *frame.DataFrame {
	if q.empty() {
		return nil
	}
	return q.frames[0]
}

// popFront removes and returns the head frame.
func (q *dataQueue) popFront() *frame.DataFrame {
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f
}
