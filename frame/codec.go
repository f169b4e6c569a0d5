package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"sort"
)

// Wire frame type tags. Numbering follows SPDY/3 (mkch-burrow/spdy/framing
// uses the same assignment); this codec does not implement header-block
// compression (spec §1 non-goal), so these are the only constants needed to
// route a frame to its decoder.
const (
	typeSynStream    uint16 = 1
	typeSynReply     uint16 = 2
	typeRstStream    uint16 = 3
	typeSettings     uint16 = 4
	typePing         uint16 = 6
	typeGoAway       uint16 = 7
	typeHeaders      uint16 = 8
	typeWindowUpdate uint16 = 9
)

var errInvalidFrame = errors.New("frame: invalid frame on wire")

// codec is the default Framer implementation: an uncompressed, length-
// prefixed binary encoding of the frame types in this package.
type codec struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewFramer returns the default Framer, reading from r and writing to w.
func NewFramer(r io.Reader, w io.Writer) Framer {
	return &codec{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

func (c *codec) ReadFrame() (Frame, error) {
	var head [8]byte
	if _, err := io.ReadFull(c.r, head[:]); err != nil {
		return nil, err
	}
	control := head[0]&0x80 != 0
	length := int(head[5])<<16 | int(head[6])<<8 | int(head[7])

	if !control {
		id := StreamId(binary.BigEndian.Uint32(head[0:4]) &^ (1 << 31))
		flags := DataFlags(head[4])
		payload := make([]byte, length)
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return nil, err
		}
		return &DataFrame{StreamId: id, Flags: flags, Data: payload}, nil
	}

	typ := binary.BigEndian.Uint16(head[2:4])
	flags := ControlFrameHeader{Flags: ControlFlags(head[4])}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return nil, err
	}
	br := &byteReader{b: body}

	switch typ {
	case typeSynStream:
		f := &SynStreamFrame{CFHeader: flags}
		f.StreamId = StreamId(br.uint32() &^ (1 << 31))
		f.AssociatedStreamId = StreamId(br.uint32() &^ (1 << 31))
		f.Priority = br.uint8() >> 5
		f.Slot = br.uint8()
		f.Headers = br.headers()
		return f, br.err
	case typeSynReply:
		f := &SynReplyFrame{CFHeader: flags}
		f.StreamId = StreamId(br.uint32() &^ (1 << 31))
		f.Headers = br.headers()
		return f, br.err
	case typeRstStream:
		f := &RstStreamFrame{}
		f.StreamId = StreamId(br.uint32() &^ (1 << 31))
		f.Status = RstStreamStatus(br.uint32())
		return f, br.err
	case typeSettings:
		n := br.uint32()
		f := &SettingsFrame{}
		for i := uint32(0); i < n && br.err == nil; i++ {
			idFlag := br.uint32()
			v := SettingsFlagIdValue{
				Flag:  SettingsFlag(idFlag >> 24),
				Id:    SettingsId(idFlag &^ (0xff << 24)),
				Value: br.uint32(),
			}
			f.FlagIdValues = append(f.FlagIdValues, v)
		}
		return f, br.err
	case typePing:
		return &PingFrame{Id: br.uint32()}, br.err
	case typeGoAway:
		f := &GoAwayFrame{}
		f.LastGoodStreamId = StreamId(br.uint32() &^ (1 << 31))
		f.Status = GoAwayStatus(br.uint32())
		return f, br.err
	case typeHeaders:
		f := &HeadersFrame{CFHeader: flags}
		f.StreamId = StreamId(br.uint32() &^ (1 << 31))
		f.Headers = br.headers()
		return f, br.err
	case typeWindowUpdate:
		f := &WindowUpdateFrame{}
		f.StreamId = StreamId(br.uint32() &^ (1 << 31))
		f.DeltaWindowSize = br.uint32() &^ (1 << 31)
		return f, br.err
	default:
		return nil, errInvalidFrame
	}
}

func (c *codec) WriteFrame(f Frame) error {
	var typ uint16
	var flags ControlFlags
	var body []byte

	switch f := f.(type) {
	case *DataFrame:
		var head [8]byte
		binary.BigEndian.PutUint32(head[0:4], uint32(f.StreamId))
		head[4] = byte(f.Flags)
		putLen24(head[5:8], len(f.Data))
		if _, err := c.w.Write(head[:]); err != nil {
			return err
		}
		if _, err := c.w.Write(f.Data); err != nil {
			return err
		}
		return c.w.Flush()
	case *SynStreamFrame:
		typ, flags = typeSynStream, f.CFHeader.Flags
		bw := &byteWriter{}
		bw.putUint32(uint32(f.StreamId))
		bw.putUint32(uint32(f.AssociatedStreamId))
		bw.putUint8(f.Priority << 5)
		bw.putUint8(f.Slot)
		bw.putHeaders(f.Headers)
		body = bw.b
	case *SynReplyFrame:
		typ, flags = typeSynReply, f.CFHeader.Flags
		bw := &byteWriter{}
		bw.putUint32(uint32(f.StreamId))
		bw.putHeaders(f.Headers)
		body = bw.b
	case *RstStreamFrame:
		typ = typeRstStream
		bw := &byteWriter{}
		bw.putUint32(uint32(f.StreamId))
		bw.putUint32(uint32(f.Status))
		body = bw.b
	case *SettingsFrame:
		typ = typeSettings
		bw := &byteWriter{}
		values := f.FlagIdValues
		sort.SliceStable(values, func(i, j int) bool { return values[i].Id < values[j].Id })
		bw.putUint32(uint32(len(values)))
		for _, v := range values {
			bw.putUint32(uint32(v.Flag)<<24 | uint32(v.Id))
			bw.putUint32(v.Value)
		}
		body = bw.b
	case *PingFrame:
		typ = typePing
		bw := &byteWriter{}
		bw.putUint32(f.Id)
		body = bw.b
	case *GoAwayFrame:
		typ = typeGoAway
		bw := &byteWriter{}
		bw.putUint32(uint32(f.LastGoodStreamId))
		bw.putUint32(uint32(f.Status))
		body = bw.b
	case *HeadersFrame:
		typ, flags = typeHeaders, f.CFHeader.Flags
		bw := &byteWriter{}
		bw.putUint32(uint32(f.StreamId))
		bw.putHeaders(f.Headers)
		body = bw.b
	case *WindowUpdateFrame:
		typ = typeWindowUpdate
		bw := &byteWriter{}
		bw.putUint32(uint32(f.StreamId))
		bw.putUint32(f.DeltaWindowSize)
		body = bw.b
	default:
		return errInvalidFrame
	}

	var head [8]byte
	head[0] = 0x80
	binary.BigEndian.PutUint16(head[2:4], typ)
	head[4] = byte(flags)
	putLen24(head[5:8], len(body))
	if _, err := c.w.Write(head[:]); err != nil {
		return err
	}
	if _, err := c.w.Write(body); err != nil {
		return err
	}
	return c.w.Flush()
}

func putLen24(b []byte, n int) {
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

// byteReader/byteWriter are tiny helpers for the uncompressed wire encoding
// above; there is no header-block compression here (spec §1 non-goal).

type byteReader struct {
	b   []byte
	off int
	err error
}

func (r *byteReader) uint32() uint32 {
	if r.err != nil || r.off+4 > len(r.b) {
		r.err = errInvalidFrame
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) uint8() uint8 {
	if r.err != nil || r.off+1 > len(r.b) {
		r.err = errInvalidFrame
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *byteReader) headers() http.Header {
	n := r.uint32()
	h := make(http.Header, int(n))
	for i := uint32(0); i < n && r.err == nil; i++ {
		k := r.string()
		vn := r.uint32()
		for j := uint32(0); j < vn && r.err == nil; j++ {
			h.Add(k, r.string())
		}
	}
	return h
}

func (r *byteReader) string() string {
	n := r.uint32()
	if r.err != nil || r.off+int(n) > len(r.b) {
		r.err = errInvalidFrame
		return ""
	}
	s := string(r.b[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}

type byteWriter struct {
	b []byte
}

func (w *byteWriter) putUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *byteWriter) putUint8(v uint8) {
	w.b = append(w.b, v)
}

func (w *byteWriter) putString(s string) {
	w.putUint32(uint32(len(s)))
	w.b = append(w.b, s...)
}

func (w *byteWriter) putHeaders(h http.Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.putUint32(uint32(len(keys)))
	for _, k := range keys {
		w.putString(k)
		vs := h[k]
		w.putUint32(uint32(len(vs)))
		for _, v := range vs {
			w.putString(v)
		}
	}
}
