// Package frame defines the typed SPDY frame values exchanged between the
// wire codec and the session layer, plus the Framer collaborator that
// produces and consumes them.
//
// The codec in this package is intentionally minimal: it gets typed frames
// on and off the wire so the rest of the module has something concrete to
// build against, but SPDY's name/value header block compression is a
// non-goal here (spec §1) and is not implemented — headers are carried
// uncompressed. Callers needing real SPDY wire compatibility should replace
// Framer with a full codec; session.Handler only depends on the interface.
package frame

import "net/http"

// StreamId is a SPDY stream identifier. The high bit is reserved; valid ids
// fit in 31 bits.
type StreamId uint32

// ControlFlags are the flag bits carried by control frames (SYN_STREAM,
// SYN_REPLY, HEADERS).
type ControlFlags uint8

const (
	ControlFlagFin            ControlFlags = 0x01
	ControlFlagUnidirectional ControlFlags = 0x02
)

// DataFlags are the flag bits carried by DATA frames.
type DataFlags uint8

const (
	DataFlagFin DataFlags = 0x01
)

// ControlFrameHeader is embedded in every control frame to carry its flags.
type ControlFrameHeader struct {
	Flags ControlFlags
}

// RstStreamStatus is the status code carried by RST_STREAM frames.
type RstStreamStatus uint32

const (
	ProtocolError RstStreamStatus = 1
	InvalidStream RstStreamStatus = 2
	RefusedStream RstStreamStatus = 3
	// UnsupportedVersion is unused by session.Handler (version negotiation
	// is out of scope, spec §1) but kept for wire completeness.
	UnsupportedVersion  RstStreamStatus = 4
	Cancel              RstStreamStatus = 5
	InternalError       RstStreamStatus = 6
	FlowControlError    RstStreamStatus = 7
	StreamInUse         RstStreamStatus = 8
	StreamAlreadyClosed RstStreamStatus = 9
)

func (s RstStreamStatus) String() string {
	switch s {
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case InvalidStream:
		return "INVALID_STREAM"
	case RefusedStream:
		return "REFUSED_STREAM"
	case UnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case Cancel:
		return "CANCEL"
	case InternalError:
		return "INTERNAL_ERROR"
	case FlowControlError:
		return "FLOW_CONTROL_ERROR"
	case StreamInUse:
		return "STREAM_IN_USE"
	case StreamAlreadyClosed:
		return "STREAM_ALREADY_CLOSED"
	default:
		return "UNKNOWN_STATUS"
	}
}

// GoAwayStatus is the status code carried by GOAWAY frames.
type GoAwayStatus uint32

const (
	GoAwayOK             GoAwayStatus = 0
	GoAwayProtocolError  GoAwayStatus = 1
	GoAwayInternalError  GoAwayStatus = 2
)

func (s GoAwayStatus) String() string {
	switch s {
	case GoAwayOK:
		return "OK"
	case GoAwayProtocolError:
		return "PROTOCOL_ERROR"
	case GoAwayInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_STATUS"
	}
}

// SettingsId identifies a single SETTINGS key. Only the two keys
// session.Handler cares about are named; others round-trip as opaque ids.
type SettingsId uint32

const (
	SettingsMaxConcurrentStreams SettingsId = 4
	SettingsInitialWindowSize    SettingsId = 7
)

// SettingsFlag is the per-value flag carried alongside a SETTINGS id/value
// pair.
type SettingsFlag uint8

const (
	FlagSettingsPersistValue SettingsFlag = 0x1
	FlagSettingsPersisted    SettingsFlag = 0x2
)

// SettingsFlagIdValue is one entry of a SETTINGS frame.
type SettingsFlagIdValue struct {
	Flag  SettingsFlag
	Id    SettingsId
	Value uint32
}

// Frame is the sum type of all SPDY frames the session layer understands.
// It is a marker interface; the session layer dispatches on concrete type.
type Frame interface {
	frame()
}

// SynStreamFrame opens a new stream.
type SynStreamFrame struct {
	StreamId         StreamId
	AssociatedStreamId StreamId
	CFHeader         ControlFrameHeader
	Priority         uint8 // 3 bits, 0 highest
	Slot             uint8
	Headers          http.Header
}

func (*SynStreamFrame) frame() {}

// Last reports whether this SYN_STREAM closes the remote-to-local half
// immediately (spec §4.1.2).
func (f *SynStreamFrame) Last() bool {
	return f.CFHeader.Flags&ControlFlagFin != 0
}

// Unidirectional reports whether the initiator declared this stream
// unidirectional (spec §4.1.2).
func (f *SynStreamFrame) Unidirectional() bool {
	return f.CFHeader.Flags&ControlFlagUnidirectional != 0
}

// SynReplyFrame replies to a SYN_STREAM.
type SynReplyFrame struct {
	StreamId StreamId
	CFHeader ControlFrameHeader
	Headers  http.Header
}

func (*SynReplyFrame) frame() {}

func (f *SynReplyFrame) Last() bool {
	return f.CFHeader.Flags&ControlFlagFin != 0
}

// RstStreamFrame abruptly terminates a stream.
type RstStreamFrame struct {
	StreamId StreamId
	Status   RstStreamStatus
}

func (*RstStreamFrame) frame() {}

// SettingsFrame carries session-wide tuning parameters.
type SettingsFrame struct {
	FlagIdValues []SettingsFlagIdValue
}

func (*SettingsFrame) frame() {}

// PingFrame is echoed back by whichever side did not originate it.
type PingFrame struct {
	Id uint32
}

func (*PingFrame) frame() {}

// GoAwayFrame announces the session is terminating.
type GoAwayFrame struct {
	LastGoodStreamId StreamId
	Status           GoAwayStatus
}

func (*GoAwayFrame) frame() {}

// HeadersFrame carries additional header fields for an open stream.
type HeadersFrame struct {
	StreamId StreamId
	CFHeader ControlFrameHeader
	Headers  http.Header
}

func (*HeadersFrame) frame() {}

func (f *HeadersFrame) Last() bool {
	return f.CFHeader.Flags&ControlFlagFin != 0
}

// WindowUpdateFrame grants additional send-window credit to the peer.
type WindowUpdateFrame struct {
	StreamId        StreamId
	DeltaWindowSize uint32 // 31 bits, positive
}

func (*WindowUpdateFrame) frame() {}

// DataFrame carries stream payload bytes.
type DataFrame struct {
	StreamId StreamId
	Flags    DataFlags
	Data     []byte
}

func (*DataFrame) frame() {}

func (f *DataFrame) Last() bool {
	return f.Flags&DataFlagFin != 0
}

// Framer reads and writes typed frames from/to an underlying transport. It
// is the external collaborator spec §1 calls "the frame encoder/decoder":
// session.Handler only depends on this interface, never on wire bytes.
type Framer interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
}
