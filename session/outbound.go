package session

import (
	"fmt"

	"github.com/go-spdy/spdymux/frame"
	"github.com/go-spdy/spdymux/splog"
)

// HandleOutbound implements spec §4.2: validate an application-produced
// frame, apply flow control or admission bookkeeping, and hand it (or a
// fragment, or nothing, pending credit) to Downstream. A non-nil return is
// the "outbound contract violation" of spec §7: the caller's write
// completion should be failed with it; the session itself is not torn down.
//
// A panic from a per-frame handler is recovered and converted into a
// session error instead (spec §7), the same conversion HandleInbound
// applies on the read side.
func (h *Handler) HandleOutbound(f frame.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Log(splog.LevelError, "spdymux: recovered panic handling outbound frame", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
			err = h.sessionError(frame.GoAwayInternalError)
		}
	}()

	switch v := f.(type) {
	case *frame.DataFrame:
		return h.outboundData(v)
	case *frame.SynStreamFrame:
		return h.outboundSynStream(v)
	case *frame.SynReplyFrame:
		return h.outboundSynReply(v)
	case *frame.RstStreamFrame:
		return h.outboundRstStream(v)
	case *frame.SettingsFrame:
		return h.outboundSettings(v)
	case *frame.PingFrame:
		return h.outboundPing(v)
	case *frame.GoAwayFrame:
		return ErrProtocolViolation
	case *frame.HeadersFrame:
		return h.outboundHeaders(v)
	case *frame.WindowUpdateFrame:
		return ErrProtocolViolation
	default:
		h.emitDownstream(f)
		return nil
	}
}

// outboundData implements spec §4.2's DATA rule.
func (h *Handler) outboundData(f *frame.DataFrame) error {
	e, ok := h.table.Get(f.StreamId)
	if !ok || e.localClosed {
		return ErrProtocolViolation
	}

	if !h.flowControlEnabled {
		h.emitDownstream(f)
		if f.Last() {
			e.localClosed = true
		}
		return nil
	}

	h.flowMu.Lock()
	length := int64(len(f.Data))

	if e.sendWindow <= 0 {
		e.pendingWrites.push(f)
		h.flowMu.Unlock()
		return nil
	}

	if e.sendWindow < length {
		avail := e.sendWindow
		prefix := &frame.DataFrame{StreamId: f.StreamId, Data: f.Data[:avail]}
		f.Data = f.Data[avail:]
		e.sendWindow = 0
		e.pendingWrites.push(f)
		h.flowMu.Unlock()
		h.emitDownstream(prefix)
		return nil
	}

	e.sendWindow -= length
	last := f.Last()
	if last {
		e.localClosed = true
	}
	h.flowMu.Unlock()
	h.emitDownstream(f)
	return nil
}

// outboundSynStream implements spec §4.2's SYN_STREAM rule.
func (h *Handler) outboundSynStream(f *frame.SynStreamFrame) error {
	if h.isRemoteInitiated(f.StreamId) {
		return ErrProtocolViolation
	}
	if _, accepted := h.acceptStream(f.StreamId, f.Priority, f.Unidirectional(), f.Last()); !accepted {
		return ErrProtocolViolation
	}
	h.emitDownstream(f)
	return nil
}

// outboundSynReply implements spec §4.2's SYN_REPLY rule.
func (h *Handler) outboundSynReply(f *frame.SynReplyFrame) error {
	e, ok := h.table.Get(f.StreamId)
	if !ok || !h.isRemoteInitiated(f.StreamId) || e.localClosed {
		return ErrProtocolViolation
	}
	if f.Last() {
		e.localClosed = true
	}
	h.emitDownstream(f)
	return nil
}

// outboundRstStream removes the stream and emits the reset.
func (h *Handler) outboundRstStream(f *frame.RstStreamFrame) error {
	h.removeStreamByID(f.StreamId)
	h.emitDownstream(f)
	return nil
}

// outboundSettings mirrors spec §4.2's SETTINGS rule (the local-origin
// counterpart of inboundSettings).
func (h *Handler) outboundSettings(f *frame.SettingsFrame) error {
	cleaned := make([]frame.SettingsFlagIdValue, 0, len(f.FlagIdValues))
	for _, fv := range f.FlagIdValues {
		fv.Flag &^= frame.FlagSettingsPersistValue
		if fv.Flag&frame.FlagSettingsPersisted != 0 {
			continue
		}
		switch fv.Id {
		case frame.SettingsMaxConcurrentStreams:
			h.sessionMu.Lock()
			h.localConcurrentStreams = fv.Value
			h.recomputeConcurrencyCap()
			h.sessionMu.Unlock()
		case frame.SettingsInitialWindowSize:
			if h.flowControlEnabled {
				h.sessionMu.Lock()
				h.updateInitialReceiveWindow(int64(fv.Value))
				h.sessionMu.Unlock()
			}
		}
		cleaned = append(cleaned, fv)
	}
	f.FlagIdValues = cleaned
	h.emitDownstream(f)
	return nil
}

// outboundPing implements spec §4.2's PING rule.
func (h *Handler) outboundPing(f *frame.PingFrame) error {
	if h.isRemoteInitiated(frame.StreamId(f.Id)) {
		return ErrProtocolViolation
	}
	h.outstandingPingsAdd(1)
	h.emitDownstream(f)
	return nil
}

// outboundHeaders implements spec §4.2's HEADERS rule.
func (h *Handler) outboundHeaders(f *frame.HeadersFrame) error {
	e, ok := h.table.Get(f.StreamId)
	if !ok || e.localClosed {
		return ErrProtocolViolation
	}
	if f.Last() {
		e.localClosed = true
	}
	h.emitDownstream(f)
	return nil
}
