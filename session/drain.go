package session

import "github.com/go-spdy/spdymux/frame"

// drainPending implements spec §4.5's pending-write drain algorithm: credit
// arriving (delta, added to e.sendWindow here; 0 when the caller has already
// applied it) is applied
// to the stream's stalled FIFO, emitting whole or partial DATA frames
// downstream until either the queue empties or the window runs out again.
// Called with flowMu NOT held; it takes it itself for the duration of the
// drain so a concurrent outbound write cannot race the queue.
//
// The caller has already applied delta to e.sendWindow (e.g.
// updateInitialSendWindow broadcasts deltas under flowMu before calling
// this per stream); drainPending re-reads e.sendWindow rather than
// re-applying delta, so passing 0 here is the common case — delta is kept
// as a parameter for callers (WINDOW_UPDATE handling) that prefer to fold
// the credit in the same critical section as the drain.
func (h *Handler) drainPending(e *StreamEntry, delta int64) {
	h.flowMu.Lock()
	e.sendWindow += delta
	var toSend []*frame.DataFrame
	for e.sendWindow > 0 && !e.pendingWrites.empty() {
		head := e.pendingWrites.front()
		need := int64(len(head.Data))
		if need <= e.sendWindow {
			e.pendingWrites.popFront()
			e.sendWindow -= need
			toSend = append(toSend, head)
			if head.Last() {
				e.localClosed = true
			}
			continue
		}
		// Partial drain: split off a prefix sized to the remaining credit,
		// mutating the head frame in place so the remainder is never
		// re-emitted (spec §4.5 "never emits overlapping bytes").
		n := e.sendWindow
		prefix := &frame.DataFrame{StreamId: head.StreamId, Data: head.Data[:n]}
		head.Data = head.Data[n:]
		e.sendWindow = 0
		toSend = append(toSend, prefix)
	}
	h.flowMu.Unlock()

	for _, f := range toSend {
		h.emitDownstream(f)
	}
}
