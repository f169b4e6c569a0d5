package session

import (
	"golang.org/x/sync/semaphore"

	"github.com/go-spdy/spdymux/frame"
)

// acceptStream implements spec §4.3 ("Stream admission"). remoteClosed and
// localClosed are the half-close flags implied by whichever SYN_STREAM
// triggered admission:
//   - inbound:  remoteClosed = frame.Last(),  localClosed = frame.Unidirectional()
//   - outbound: remoteClosed = frame.Unidirectional(), localClosed = frame.Last()
//
// Concurrency cap admission is implemented with golang.org/x/sync/semaphore:
// each stream admitted while a cap is in effect holds one permit of the
// currently-live semaphore instance, released exactly once on removal (see
// removeStreamByID). A SETTINGS-driven cap change retires the old instance
// and reassigns each active entry to the new one while it has permits left;
// entries beyond the new cap hold no permit (see recomputeConcurrencyCap).
// An entry's admitSem, when set, is always the instance its removal will
// release into.
func (h *Handler) acceptStream(id frame.StreamId, priority uint8, remoteClosed, localClosed bool) (*StreamEntry, bool) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()

	if h.receivedGoAway || h.sentGoAway {
		return nil, false
	}

	var sem *semaphore.Weighted
	if h.admitSem != nil {
		if !h.admitSem.TryAcquire(1) {
			return nil, false
		}
		sem = h.admitSem
	}

	e := &StreamEntry{
		id:           id,
		priority:     priority,
		remoteClosed: remoteClosed,
		localClosed:  localClosed,
		sendWindow:   h.initialSendWindow,
		recvWindow:   h.initialReceiveWindow,
		admitSem:     sem,
	}
	h.table.Insert(e)
	if h.isRemoteInitiated(id) {
		h.lastGoodStreamId = id
	}
	return e, true
}

// NextStreamId allocates the next locally-initiated stream id (odd for
// clients, even for servers, per spec.md §3), for callers that open streams
// outbound. Ids are handed out strictly increasing by 2, so they satisfy
// invariant 1 on the side that issues them.
func (h *Handler) NextStreamId() frame.StreamId {
	h.sessionMu.Lock()
	id := h.nextLocalId
	h.nextLocalId += 2
	h.sessionMu.Unlock()
	return id
}

// removeStreamByID removes a stream and releases its admission permit, if
// any. Every code path that removes a stream from the table (RST_STREAM,
// both-halves-closed, stream errors, GOAWAY draining) must go through this
// so the concurrency-cap accounting stays correct.
func (h *Handler) removeStreamByID(id frame.StreamId) {
	e, ok := h.table.Get(id)
	h.table.Remove(id)
	if ok && e.admitSem != nil {
		e.admitSem.Release(1)
	}
	h.maybeSignalDrained()
}

// recomputeConcurrencyCap implements spec §4.3's effective_max_concurrent_streams
// derivation after either side's SETTINGS changes local or remote
// MAX_CONCURRENT_STREAMS. Must be called with sessionMu held.
//
// A cap change retires the old semaphore instance outright rather than
// layering a new one on top of it: every currently-active entry is
// reassigned to the new semaphore (acquiring a placeholder permit for it
// where capacity allows), so an entry's own admitSem field and the
// semaphore the entry's eventual removal releases into are always the same
// instance. Leaving an entry pointed at a retired semaphore would mean its
// removal frees a permit nothing is waiting on while the live semaphore's
// placeholder for it is never freed — a permanent capacity leak.
func (h *Handler) recomputeConcurrencyCap() {
	newMax := effectiveMax(h.localConcurrentStreams, h.remoteConcurrentStreams)
	if newMax == h.effectiveMaxConcurrentStreams {
		return
	}
	h.effectiveMaxConcurrentStreams = newMax
	newSem := newAdmitSem(newMax)
	h.table.Each(func(e *StreamEntry) {
		if newSem != nil && newSem.TryAcquire(1) {
			e.admitSem = newSem
		} else {
			e.admitSem = nil
		}
	})
	h.admitSem = newSem
}

// updateInitialSendWindow implements spec §4.4. Must be called with
// sessionMu held; it touches every active stream's sendWindow, which is
// itself flow-control-lock state, so it also takes flowMu for the duration
// of the broadcast.
func (h *Handler) updateInitialSendWindow(newSize int64) {
	delta := newSize - h.initialSendWindow
	h.initialSendWindow = newSize
	if delta == 0 {
		return
	}
	h.flowMu.Lock()
	h.table.Each(func(e *StreamEntry) {
		e.sendWindow += delta
	})
	h.flowMu.Unlock()
	if delta > 0 {
		// Streams that were stalled may now have credit; drain them.
		h.table.Each(func(e *StreamEntry) {
			h.drainPending(e, 0)
		})
	}
}

// updateInitialReceiveWindow implements spec §4.4.
func (h *Handler) updateInitialReceiveWindow(newSize int64) {
	delta := newSize - h.initialReceiveWindow
	h.initialReceiveWindow = newSize
	if delta == 0 {
		return
	}
	h.flowMu.Lock()
	h.table.Each(func(e *StreamEntry) {
		e.recvWindow += delta
		if delta < 0 {
			// spec.md §4.4: recv_window_lower_bound -= (old - new), and
			// (old - new) == -delta here, so this is lowerBound += delta —
			// delta is negative, so the bound moves further negative.
			e.recvWindowLowerBound += delta
		}
	})
	h.flowMu.Unlock()
}

// maybeSignalDrained fulfills close_promise once a graceful close has no
// more active streams to wait for (spec §4.6 "Graceful close").
func (h *Handler) maybeSignalDrained() {
	if draining(h) && h.table.ActiveCount() == 0 {
		h.closeOnce.Do(func() { close(h.drained) })
	}
}
