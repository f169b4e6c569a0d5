package session

import (
	"fmt"
	"math"

	"github.com/go-spdy/spdymux/frame"
	"github.com/go-spdy/spdymux/splog"
)

// HandleInbound implements spec §4.1: classify and validate each frame in a
// batch, forwarding upstream in receipt order with one exception — a
// SYN_STREAM forces a flush of anything still buffered before it is
// processed, so last_good_stream_id is never observed stale by a handler
// watching the upstream feed (spec §5 "Ordering guarantees").
//
// A panic from a per-frame handler is recovered here and converted into a
// session error (spec §7: "unhandled exceptions escaping an inner handler
// are converted to session errors") rather than left to escape into the
// caller's read loop and crash the connection's goroutine.
func (h *Handler) HandleInbound(batch []frame.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Log(splog.LevelError, "spdymux: recovered panic handling inbound frame", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
			err = h.sessionError(frame.GoAwayInternalError)
		}
	}()

	var buffered []frame.Frame
	flush := func() {
		for _, f := range buffered {
			h.up(f)
		}
		buffered = buffered[:0]
	}

	for _, f := range batch {
		if _, isSyn := f.(*frame.SynStreamFrame); isSyn {
			flush()
		}
		buffered = append(buffered, h.handleInboundOne(f)...)
	}
	flush()
	return nil
}

// handleInboundOne returns the (possibly empty, possibly fragmented) set of
// frames that should be delivered upstream for f, after applying f's
// per-type validation and state mutation.
func (h *Handler) handleInboundOne(f frame.Frame) []frame.Frame {
	switch v := f.(type) {
	case *frame.DataFrame:
		return h.inboundData(v)
	case *frame.SynStreamFrame:
		return h.inboundSynStream(v)
	case *frame.SynReplyFrame:
		return h.inboundSynReply(v)
	case *frame.RstStreamFrame:
		return h.inboundRstStream(v)
	case *frame.SettingsFrame:
		return h.inboundSettings(v)
	case *frame.PingFrame:
		return h.inboundPing(v)
	case *frame.GoAwayFrame:
		return h.inboundGoAway(v)
	case *frame.HeadersFrame:
		return h.inboundHeaders(v)
	case *frame.WindowUpdateFrame:
		return h.inboundWindowUpdate(v)
	default:
		return []frame.Frame{f}
	}
}

// inboundData implements spec §4.1.1.
func (h *Handler) inboundData(f *frame.DataFrame) []frame.Frame {
	e, ok := h.table.Get(f.StreamId)
	if !ok {
		h.sessionMu.Lock()
		last := h.lastGoodStreamId
		sentGoAway := h.sentGoAway
		h.sessionMu.Unlock()
		switch {
		case f.StreamId <= last:
			h.streamError(f.StreamId, frame.ProtocolError)
		case !sentGoAway:
			h.streamError(f.StreamId, frame.InvalidStream)
		}
		return nil
	}

	if e.remoteClosed {
		h.streamError(f.StreamId, frame.StreamAlreadyClosed)
		return nil
	}
	if h.isLocallyInitiated(f.StreamId) && !e.receivedReply {
		h.streamError(f.StreamId, frame.ProtocolError)
		return nil
	}

	if !h.flowControlEnabled {
		if f.Last() {
			e.remoteClosed = true
		}
		return []frame.Frame{f}
	}
	return h.inboundDataFlowControl(e, f)
}

// inboundDataFlowControl applies spec §4.1.1 rule 4: window accounting,
// buffer-bounded chunking of bytes that arrived before our shrinking
// SETTINGS was observed by the peer, and the half-window top-up.
func (h *Handler) inboundDataFlowControl(e *StreamEntry, f *frame.DataFrame) []frame.Frame {
	length := int64(len(f.Data))
	e.recvWindow -= length
	if e.recvWindow < e.recvWindowLowerBound {
		h.streamError(f.StreamId, frame.FlowControlError)
		return nil
	}

	initial := h.currentInitialReceiveWindow()

	var out []frame.Frame
	if e.recvWindow < 0 {
		out = chunkData(f, initial)
	} else {
		out = []frame.Frame{f}
	}

	if e.recvWindow <= initial/2 && !f.Last() {
		delta := initial - e.recvWindow
		e.recvWindow += delta
		e.recvWindowLowerBound = 0
		h.emitDownstream(&frame.WindowUpdateFrame{StreamId: f.StreamId, DeltaWindowSize: uint32(delta)})
	}

	if f.Last() {
		e.remoteClosed = true
	}
	return out
}

// chunkData splits f into frame-sized pieces of at most size bytes, used to
// forward bytes that exceeded the receive window in buffer-bounded slices
// (spec §4.1.1 rule 4). Only the final chunk carries the original frame's
// flags, so a FIN is never reported early.
func chunkData(f *frame.DataFrame, size int64) []frame.Frame {
	if size <= 0 || int64(len(f.Data)) <= size {
		return []frame.Frame{f}
	}
	var out []frame.Frame
	data := f.Data
	for int64(len(data)) > size {
		out = append(out, &frame.DataFrame{StreamId: f.StreamId, Data: data[:size]})
		data = data[size:]
	}
	out = append(out, &frame.DataFrame{StreamId: f.StreamId, Flags: f.Flags, Data: data})
	return out
}

func (h *Handler) currentInitialReceiveWindow() int64 {
	h.sessionMu.Lock()
	v := h.initialReceiveWindow
	h.sessionMu.Unlock()
	return v
}

// inboundSynStream implements spec §4.1.2.
func (h *Handler) inboundSynStream(f *frame.SynStreamFrame) []frame.Frame {
	_, active := h.table.Get(f.StreamId)
	if f.StreamId == 0 || active || !h.isRemoteInitiated(f.StreamId) {
		h.streamError(f.StreamId, frame.ProtocolError)
		return nil
	}

	h.sessionMu.Lock()
	last := h.lastGoodStreamId
	h.sessionMu.Unlock()
	if f.StreamId <= last {
		h.sessionError(frame.GoAwayProtocolError)
		return nil
	}

	if _, accepted := h.acceptStream(f.StreamId, f.Priority, f.Last(), f.Unidirectional()); !accepted {
		h.streamError(f.StreamId, frame.RefusedStream)
		return nil
	}
	return []frame.Frame{f}
}

// inboundSynReply implements spec §4.1.3.
func (h *Handler) inboundSynReply(f *frame.SynReplyFrame) []frame.Frame {
	e, ok := h.table.Get(f.StreamId)
	if !ok || h.isRemoteInitiated(f.StreamId) || e.remoteClosed {
		h.streamError(f.StreamId, frame.InvalidStream)
		return nil
	}
	if e.receivedReply {
		h.streamError(f.StreamId, frame.StreamInUse)
		return nil
	}
	e.receivedReply = true
	if f.Last() {
		e.remoteClosed = true
	}
	return []frame.Frame{f}
}

// inboundRstStream removes the stream unconditionally and never triggers a
// reply RST_STREAM.
func (h *Handler) inboundRstStream(f *frame.RstStreamFrame) []frame.Frame {
	h.removeStreamByID(f.StreamId)
	return []frame.Frame{f}
}

// inboundSettings mirrors spec §4.1's SETTINGS rule.
func (h *Handler) inboundSettings(f *frame.SettingsFrame) []frame.Frame {
	cleaned := make([]frame.SettingsFlagIdValue, 0, len(f.FlagIdValues))
	for _, fv := range f.FlagIdValues {
		fv.Flag &^= frame.FlagSettingsPersistValue
		if fv.Flag&frame.FlagSettingsPersisted != 0 {
			continue
		}
		switch fv.Id {
		case frame.SettingsMaxConcurrentStreams:
			h.sessionMu.Lock()
			h.remoteConcurrentStreams = fv.Value
			h.recomputeConcurrencyCap()
			h.sessionMu.Unlock()
		case frame.SettingsInitialWindowSize:
			if h.flowControlEnabled {
				h.sessionMu.Lock()
				h.updateInitialSendWindow(int64(fv.Value))
				h.sessionMu.Unlock()
			}
		}
		cleaned = append(cleaned, fv)
	}
	f.FlagIdValues = cleaned
	return []frame.Frame{f}
}

// inboundPing implements spec §4.1's PING rule.
func (h *Handler) inboundPing(f *frame.PingFrame) []frame.Frame {
	if h.isRemoteInitiated(frame.StreamId(f.Id)) {
		h.emitDownstream(&frame.PingFrame{Id: f.Id})
	} else {
		h.decrementPing()
	}
	return []frame.Frame{f}
}

// inboundGoAway implements spec §4.1's GOAWAY rule: record it, let in-flight
// streams run to completion, refuse new locally-initiated ones (enforced at
// outbound SYN_STREAM time).
func (h *Handler) inboundGoAway(f *frame.GoAwayFrame) []frame.Frame {
	h.sessionMu.Lock()
	h.receivedGoAway = true
	h.sessionMu.Unlock()
	return []frame.Frame{f}
}

// inboundHeaders implements spec §4.1's HEADERS rule.
func (h *Handler) inboundHeaders(f *frame.HeadersFrame) []frame.Frame {
	e, ok := h.table.Get(f.StreamId)
	if !ok {
		h.streamError(f.StreamId, frame.ProtocolError)
		return nil
	}
	if e.remoteClosed {
		h.streamError(f.StreamId, frame.InvalidStream)
		return nil
	}
	if f.Last() {
		e.remoteClosed = true
	}
	return []frame.Frame{f}
}

// inboundWindowUpdate implements spec §4.1's WINDOW_UPDATE rule (flow
// control enabled sessions only).
func (h *Handler) inboundWindowUpdate(f *frame.WindowUpdateFrame) []frame.Frame {
	if !h.flowControlEnabled {
		return []frame.Frame{f}
	}
	e, ok := h.table.Get(f.StreamId)
	if !ok {
		return nil
	}
	if e.localClosed {
		return nil
	}

	delta := int64(f.DeltaWindowSize)
	h.flowMu.Lock()
	overflow := e.sendWindow+delta > math.MaxInt32
	h.flowMu.Unlock()
	if overflow {
		h.streamError(f.StreamId, frame.FlowControlError)
		return nil
	}

	h.drainPending(e, delta)
	return []frame.Frame{f}
}
