package session

import (
	"context"
	"sync/atomic"

	"github.com/go-spdy/spdymux/frame"
)

// localPingID produces a locally-initiated ping id with the correct parity
// (spec §4.2: "for servers: even; for clients: odd"). seq need not itself be
// even/odd; the shift fixes parity regardless.
func localPingID(isServer bool, seq uint32) uint32 {
	id := seq << 1
	if !isServer {
		id |= 1
	}
	return id
}

// outstandingPingsAdd adjusts the outstanding-ping counter; used by the
// outbound PING path (spec §4.2: "increment outstanding_pings").
func (h *Handler) outstandingPingsAdd(n int32) {
	atomic.AddInt32(&h.outstandingPings, n)
}

// decrementPing implements the inbound-reply half of spec §4.1's PING rule:
// if outstandingPings is zero the reply is for a ping we never issued (or
// already consumed) and is dropped silently; otherwise decrement and wake
// any Ping callers waiting on a reply. Id correlation is deliberately not
// enforced — see spec §9 Open Question (b) and SPEC_FULL.md §5: the
// invariant here is the bare counter, not a per-id ledger, so a spoofed
// reply from the peer can desynchronize it.
func (h *Handler) decrementPing() {
	for {
		cur := atomic.LoadInt32(&h.outstandingPings)
		if cur == 0 {
			return
		}
		if atomic.CompareAndSwapInt32(&h.outstandingPings, cur, cur-1) {
			break
		}
	}
	h.pingMu.Lock()
	close(h.pingNotify)
	h.pingNotify = make(chan struct{})
	h.pingMu.Unlock()
}

// Ping issues a locally-initiated PING and blocks until any subsequent PING
// reply is observed (or ctx is done). This is a convenience supplementing
// spec.md, which specifies the outstandingPings bookkeeping but not a
// caller-facing wait helper (SPEC_FULL.md §5).
func (h *Handler) Ping(ctx context.Context) error {
	seq := atomic.AddUint32(&h.localPingSeq, 1)
	id := localPingID(h.isServer, seq)

	before := atomic.LoadInt32(&h.outstandingPings)
	atomic.AddInt32(&h.outstandingPings, 1)
	h.emitDownstream(&frame.PingFrame{Id: id})

	for {
		h.pingMu.Lock()
		ch := h.pingNotify
		h.pingMu.Unlock()
		select {
		case <-ch:
			if atomic.LoadInt32(&h.outstandingPings) <= before {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
