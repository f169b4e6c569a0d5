// Package session implements the SPDY session multiplexing layer: the
// protocol driver that owns stream lifecycle, per-stream windowed flow
// control, and the session-wide error model, sitting between a frame codec
// (package frame) and an application handler.
package session

import (
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/go-spdy/spdymux/frame"
	"github.com/go-spdy/spdymux/splog"
)

// Upstream delivers a decoded frame to the application above the session
// layer. It must not block for long; HandleInbound calls it synchronously.
type Upstream func(frame.Frame)

// Downstream hands a frame to the codec for encoding onto the wire.
type Downstream func(frame.Frame) error

// Transport is the narrow slice of the underlying connection the handler
// needs: the ability to force it closed after a session-ending GOAWAY or a
// drained graceful close. Everything else about the transport (retries,
// TLS, etc.) is out of scope (spec §1).
type Transport interface {
	Close() error
}

// Handler is the protocol driver: spec.md's SessionHandler. One Handler is
// created per transport connection.
type Handler struct {
	cfg                 Config
	flowControlEnabled  bool
	isServer            bool
	table               *Table
	up                  Upstream
	down                Downstream
	transport           Transport
	log                 splog.Logger

	// sessionMu guards sentGoAway, receivedGoAway, lastGoodStreamId,
	// initialSendWindow, initialReceiveWindow, remote/local/effective
	// concurrent-stream caps and the admission semaphore (spec §5.1).
	sessionMu sync.Mutex
	sentGoAway,
	receivedGoAway bool
	lastGoodStreamId frame.StreamId
	nextLocalId      frame.StreamId

	initialSendWindow    int64
	initialReceiveWindow int64

	remoteConcurrentStreams       uint32
	localConcurrentStreams        uint32
	effectiveMaxConcurrentStreams uint32
	admitSem                      *semaphore.Weighted // nil when cap is 0 (unspecified)

	// flowMu guards sendWindow and pendingWrites for every stream during
	// outbound DATA handling and pending-write drain (spec §5.2). A single
	// lock covers all streams, matching spec.md's description of one
	// flow-control lock per session rather than one per stream.
	flowMu sync.Mutex

	outstandingPings int32  // atomic
	localPingSeq     uint32 // atomic, used only by Ping's id generation
	pingMu           sync.Mutex
	pingNotify       chan struct{} // closed and replaced each time decrementPing runs

	closeOnce sync.Once
	drained   chan struct{} // closed once active_count() reaches zero post-GOAWAY
	draining  int32         // atomic bool: graceful close in progress
}

// New constructs a Handler for one transport connection. up delivers decoded
// frames upstream; down hands frames to the codec; transport is closed once
// the session ends (after a session error's GOAWAY, or after a graceful
// Close finishes draining).
func New(cfg Config, up Upstream, down Downstream, transport Transport) *Handler {
	h := &Handler{
		cfg:                  cfg,
		flowControlEnabled:   cfg.flowControlEnabled(),
		isServer:             cfg.IsServer,
		table:                NewTable(),
		up:                   up,
		down:                 down,
		transport:            transport,
		log:                  cfg.logger(),
		initialSendWindow:    cfg.initialWindow(),
		initialReceiveWindow: cfg.initialWindow(),
		localConcurrentStreams: cfg.MaxConcurrentStreams,
		drained:              make(chan struct{}),
		pingNotify:           make(chan struct{}),
	}
	h.effectiveMaxConcurrentStreams = effectiveMax(h.localConcurrentStreams, h.remoteConcurrentStreams)
	h.admitSem = newAdmitSem(h.effectiveMaxConcurrentStreams)
	if cfg.IsServer {
		h.nextLocalId = 2
	} else {
		h.nextLocalId = 1
	}
	return h
}

// isRemoteInitiated reports whether id belongs to the peer's half of the id
// space (spec §3: server-initiated ids are even, client-initiated odd).
func (h *Handler) isRemoteInitiated(id frame.StreamId) bool {
	serverInitiated := id%2 == 0
	if h.isServer {
		return !serverInitiated
	}
	return serverInitiated
}

func (h *Handler) isLocallyInitiated(id frame.StreamId) bool {
	return !h.isRemoteInitiated(id)
}

// ActiveCount exposes Table.ActiveCount for callers/tests.
func (h *Handler) ActiveCount() int { return h.table.ActiveCount() }

// AnyActive exposes Table.AnyActive for callers/tests.
func (h *Handler) AnyActive() bool { return h.table.AnyActive() }

// streamError implements spec §4.6's stream-scoped error handling: remove
// the stream (if present), emit RST_STREAM downstream, and, if the stream
// was known to the application (i.e. present in the table), also deliver an
// RST_STREAM upstream so the application observes the failure. An
// RST_STREAM must never be sent in response to an inbound RST_STREAM;
// callers handling frame.RstStreamFrame must not route through here.
func (h *Handler) streamError(id frame.StreamId, status frame.RstStreamStatus) *StreamError {
	_, existed := h.table.Get(id)
	h.removeStreamByID(id)
	h.emitDownstream(&frame.RstStreamFrame{StreamId: id, Status: status})
	if existed {
		h.up(&frame.RstStreamFrame{StreamId: id, Status: status})
	}
	h.log.Log(splog.LevelWarn, "spdymux: stream error", map[string]interface{}{
		"stream_id": id, "status": status.String(),
	})
	h.maybeSignalDrained()
	return &StreamError{StreamID: id, Status: status}
}

// sessionError implements spec §4.6's session-scoped error handling: emit
// GOAWAY with the current lastGoodStreamId and close the transport.
func (h *Handler) sessionError(status frame.GoAwayStatus) *SessionError {
	h.sessionMu.Lock()
	last := h.lastGoodStreamId
	alreadySent := h.sentGoAway
	h.sentGoAway = true
	h.sessionMu.Unlock()

	if !alreadySent {
		h.emitDownstream(&frame.GoAwayFrame{LastGoodStreamId: last, Status: status})
	}
	h.log.Log(splog.LevelError, "spdymux: session error", map[string]interface{}{
		"status": status.String(), "last_good_stream_id": last,
	})
	if h.transport != nil {
		_ = h.transport.Close()
	}
	return &SessionError{Status: status}
}

// emitDownstream writes a frame to the codec, logging (but not panicking
// on) a write failure — a downstream write error is a transport-level
// concern (out of scope, spec §1), not something the protocol state machine
// can recover from here.
func (h *Handler) emitDownstream(f frame.Frame) {
	if err := h.down(f); err != nil {
		h.log.Log(splog.LevelError, "spdymux: downstream write failed", map[string]interface{}{
			"err": err.Error(),
		})
	}
}

func effectiveMax(local, remote uint32) uint32 {
	switch {
	case local == 0:
		return remote
	case remote == 0:
		return local
	case local < remote:
		return local
	default:
		return remote
	}
}

func newAdmitSem(max uint32) *semaphore.Weighted {
	if max == 0 {
		return nil
	}
	return semaphore.NewWeighted(int64(max))
}
