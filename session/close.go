package session

import (
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/go-spdy/spdymux/frame"
	"github.com/go-spdy/spdymux/splog"
)

func draining(h *Handler) bool {
	return atomic.LoadInt32(&h.draining) == 1
}

// Close implements spec §4.6's "Graceful close": emit GOAWAY with status OK;
// if no streams are active, close the transport as soon as the GOAWAY is
// flushed; otherwise arm close_promise and wait for active_count() to reach
// zero (or for DrainTimeout to expire, resolving spec §9 Open Question (a)),
// then close.
//
// The wait is implemented as a jpillora/backoff-scheduled poll of
// ActiveCount rather than a bare sleep: under a slow drain (many streams
// finishing over tens of seconds) this spaces out the polling instead of
// busy-waiting, while still reacting quickly to a fast drain. It runs
// alongside the close_promise channel, which fires immediately when the
// last stream's removal observes draining==true; the backoff loop is a
// bounded fallback that guarantees forward progress even if a removal is
// missed.
func (h *Handler) Close() error {
	h.sessionMu.Lock()
	alreadySent := h.sentGoAway
	h.sentGoAway = true
	last := h.lastGoodStreamId
	h.sessionMu.Unlock()

	atomic.StoreInt32(&h.draining, 1)

	if !alreadySent {
		h.emitDownstream(&frame.GoAwayFrame{LastGoodStreamId: last, Status: frame.GoAwayOK})
	}

	if h.table.ActiveCount() == 0 {
		return h.closeTransport()
	}

	deadline := time.NewTimer(h.cfg.drainTimeout())
	defer deadline.Stop()

	b := &backoff.Backoff{Min: 5 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2}
	poll := time.NewTimer(b.Duration())
	defer poll.Stop()

	for {
		select {
		case <-h.drained:
			return h.closeTransport()
		case <-deadline.C:
			h.log.Log(splog.LevelWarn, "spdymux: drain timeout, forcing close", map[string]interface{}{
				"active_streams": h.table.ActiveCount(),
			})
			return h.closeTransport()
		case <-poll.C:
			if h.table.ActiveCount() == 0 {
				return h.closeTransport()
			}
			poll.Reset(b.Duration())
		}
	}
}

func (h *Handler) closeTransport() error {
	if h.transport == nil {
		return nil
	}
	return h.transport.Close()
}
