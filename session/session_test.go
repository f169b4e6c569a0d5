package session

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-spdy/spdymux/frame"
)

// fakeWire records every frame the Handler hands downstream and lets tests
// assert on it, matching the teacher's style of a fake transport collaborator.
type fakeWire struct {
	mu   sync.Mutex
	down []frame.Frame
}

func (w *fakeWire) write(f frame.Frame) error {
	w.mu.Lock()
	w.down = append(w.down, f)
	w.mu.Unlock()
	return nil
}

func (w *fakeWire) frames() []frame.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]frame.Frame, len(w.down))
	copy(out, w.down)
	return out
}

type fakeTransport struct {
	mu     sync.Mutex
	closed bool
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// upRecorder records every frame delivered upstream.
type upRecorder struct {
	mu  sync.Mutex
	got []frame.Frame
}

func (u *upRecorder) deliver(f frame.Frame) {
	u.mu.Lock()
	u.got = append(u.got, f)
	u.mu.Unlock()
}

func (u *upRecorder) frames() []frame.Frame {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]frame.Frame, len(u.got))
	copy(out, u.got)
	return out
}

func newTestHandler(t *testing.T, isServer bool) (*Handler, *fakeWire, *upRecorder, *fakeTransport) {
	t.Helper()
	wire := &fakeWire{}
	up := &upRecorder{}
	transport := &fakeTransport{}
	h := New(Config{Version: 3, IsServer: isServer}, up.deliver, wire.write, transport)
	return h, wire, up, transport
}

// Scenario 1 (spec.md §8): peer opens, sends data, closes.
func TestScenario_PeerOpensSendsDataCloses(t *testing.T) {
	h, wire, up, _ := newTestHandler(t, true)

	err := h.HandleInbound([]frame.Frame{
		&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}},
		&frame.DataFrame{StreamId: 1, Data: make([]byte, 100)},
		&frame.DataFrame{StreamId: 1, Data: make([]byte, 50), Flags: frame.DataFlagFin},
	})
	require.NoError(t, err)

	require.Equal(t, frame.StreamId(1), h.lastGoodStreamId)
	e, ok := h.table.Get(1)
	require.True(t, ok)
	require.True(t, e.remoteClosed)
	require.Equal(t, int64(DefaultInitialWindow-150), e.recvWindow)
	require.Empty(t, wire.frames(), "no WINDOW_UPDATE expected: remaining window > half")

	gotUp := up.frames()
	require.Len(t, gotUp, 3)
	_, isSyn := gotUp[0].(*frame.SynStreamFrame)
	require.True(t, isSyn)
}

// Scenario 2: half-window crossed triggers WINDOW_UPDATE.
func TestScenario_HalfWindowTriggersWindowUpdate(t *testing.T) {
	h, wire, _, _ := newTestHandler(t, true)
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}}}))

	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.DataFrame{StreamId: 1, Data: make([]byte, 40000)},
	}))

	e, _ := h.table.Get(1)
	require.Equal(t, int64(DefaultInitialWindow), e.recvWindow)

	found := false
	for _, f := range wire.frames() {
		if wu, ok := f.(*frame.WindowUpdateFrame); ok {
			require.Equal(t, frame.StreamId(1), wu.StreamId)
			require.Equal(t, uint32(40000), wu.DeltaWindowSize)
			found = true
		}
	}
	require.True(t, found, "expected a WINDOW_UPDATE frame")
}

// Scenario 3: outbound stall and drain.
func TestScenario_OutboundStallAndDrain(t *testing.T) {
	h, wire, _, _ := newTestHandler(t, false)
	require.NoError(t, h.HandleOutbound(&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}}))
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynReplyFrame{StreamId: 1, Headers: http.Header{}}}))

	e, _ := h.table.Get(1)
	h.flowMu.Lock()
	e.sendWindow = 0
	h.flowMu.Unlock()

	require.Error(t, h.HandleOutbound(&frame.DataFrame{StreamId: 99, Data: make([]byte, 1)}), "write on an unopened stream is a protocol violation")

	payload := make([]byte, 1000)
	require.NoError(t, h.HandleOutbound(&frame.DataFrame{StreamId: 1, Data: payload}))
	require.False(t, e.pendingWrites.empty())
	require.Equal(t, 1, len(e.pendingWrites.frames))

	h.drainPending(e, 500)

	var emitted []*frame.DataFrame
	for _, f := range wire.frames() {
		if d, ok := f.(*frame.DataFrame); ok {
			emitted = append(emitted, d)
		}
	}
	require.NotEmpty(t, emitted)
	last := emitted[len(emitted)-1]
	require.Equal(t, 500, len(last.Data))
	require.Equal(t, int64(0), e.sendWindow)
	require.False(t, e.pendingWrites.empty())
	require.Equal(t, 500, len(e.pendingWrites.front().Data))
}

// Scenario 4: strictly-increasing id violation -> session error.
func TestScenario_StrictlyIncreasingIdViolation(t *testing.T) {
	h, wire, _, transport := newTestHandler(t, true)
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynStreamFrame{StreamId: 5, Headers: http.Header{}}}))
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynStreamFrame{StreamId: 3, Headers: http.Header{}}}))

	require.True(t, transport.isClosed())
	found := false
	for _, f := range wire.frames() {
		if ga, ok := f.(*frame.GoAwayFrame); ok {
			require.Equal(t, frame.StreamId(5), ga.LastGoodStreamId)
			require.Equal(t, frame.GoAwayProtocolError, ga.Status)
			found = true
		}
	}
	require.True(t, found)
}

// Scenario 5: data on a half-closed stream.
func TestScenario_DataOnHalfClosedStream(t *testing.T) {
	h, wire, up, _ := newTestHandler(t, true)
	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.SynStreamFrame{StreamId: 7, CFHeader: frame.ControlFrameHeader{Flags: frame.ControlFlagFin}, Headers: http.Header{}},
	}))
	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.DataFrame{StreamId: 7, Data: make([]byte, 10)},
	}))

	var rst *frame.RstStreamFrame
	for _, f := range wire.frames() {
		if r, ok := f.(*frame.RstStreamFrame); ok {
			rst = r
		}
	}
	require.NotNil(t, rst)
	require.Equal(t, frame.StreamAlreadyClosed, rst.Status)

	var upRst *frame.RstStreamFrame
	for _, f := range up.frames() {
		if r, ok := f.(*frame.RstStreamFrame); ok {
			upRst = r
		}
	}
	require.NotNil(t, upRst)
	_, stillActive := h.table.Get(7)
	require.False(t, stillActive)
}

// Scenario 6: concurrency cap refusal.
func TestScenario_ConcurrencyCapRefusal(t *testing.T) {
	wire := &fakeWire{}
	up := &upRecorder{}
	h := New(Config{Version: 3, IsServer: true, MaxConcurrentStreams: 2}, up.deliver, wire.write, &fakeTransport{})

	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}}}))
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynStreamFrame{StreamId: 3, Headers: http.Header{}}}))
	require.Equal(t, 2, h.ActiveCount())

	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynStreamFrame{StreamId: 5, Headers: http.Header{}}}))

	_, ok := h.table.Get(5)
	require.False(t, ok)

	var rst *frame.RstStreamFrame
	for _, f := range wire.frames() {
		if r, ok := f.(*frame.RstStreamFrame); ok && r.StreamId == 5 {
			rst = r
		}
	}
	require.NotNil(t, rst)
	require.Equal(t, frame.RefusedStream, rst.Status)
}

// Boundary: SETTINGS shrink moves recv_window_lower_bound so in-flight data
// within the old window doesn't spuriously trigger FLOW_CONTROL_ERROR.
func TestBoundary_SettingsShrinkLowerBound(t *testing.T) {
	h, wire, _, _ := newTestHandler(t, true)
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}}}))

	require.NoError(t, h.HandleOutbound(&frame.SettingsFrame{FlagIdValues: []frame.SettingsFlagIdValue{
		{Id: frame.SettingsInitialWindowSize, Value: DefaultInitialWindow - 1000},
	}}))

	e, _ := h.table.Get(1)
	require.Equal(t, int64(-1000), e.recvWindowLowerBound)

	err := h.HandleInbound([]frame.Frame{&frame.DataFrame{StreamId: 1, Data: make([]byte, 500)}})
	require.NoError(t, err)
	_, stillActive := h.table.Get(1)
	require.True(t, stillActive, "500 bytes is within the shrunk lower bound, must not reset")
	_ = wire
}

// Boundary: WINDOW_UPDATE delta=0 is a no-op.
func TestBoundary_ZeroDeltaWindowUpdateIsNoop(t *testing.T) {
	h, _, _, _ := newTestHandler(t, false)
	require.NoError(t, h.HandleOutbound(&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}}))
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynReplyFrame{StreamId: 1, Headers: http.Header{}}}))

	e, _ := h.table.Get(1)
	before := e.sendWindow
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.WindowUpdateFrame{StreamId: 1, DeltaWindowSize: 0}}))
	require.Equal(t, before, e.sendWindow)
}

// Boundary: exceeding INT32_MAX on WINDOW_UPDATE raises FLOW_CONTROL_ERROR.
func TestBoundary_WindowUpdateOverflow(t *testing.T) {
	h, wire, _, _ := newTestHandler(t, false)
	require.NoError(t, h.HandleOutbound(&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}}))
	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.SynReplyFrame{StreamId: 1, Headers: http.Header{}}}))

	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.WindowUpdateFrame{StreamId: 1, DeltaWindowSize: 0x7fffffff},
	}))

	var rst *frame.RstStreamFrame
	for _, f := range wire.frames() {
		if r, ok := f.(*frame.RstStreamFrame); ok {
			rst = r
		}
	}
	require.NotNil(t, rst)
	require.Equal(t, frame.FlowControlError, rst.Status)
}

// Invariant: no new stream is admitted after GOAWAY.
func TestInvariant_NoAdmissionAfterGoAway(t *testing.T) {
	h, _, _, _ := newTestHandler(t, true)
	require.NoError(t, h.Close())
	_, accepted := h.acceptStream(1, 0, false, false)
	require.False(t, accepted)
}

// PING: unmatched reply is dropped silently (counter stays at zero, never
// goes negative); a matched reply decrements it (spec.md §4.1, §7).
func TestPing_OutstandingCounterAndDrop(t *testing.T) {
	h, _, _, _ := newTestHandler(t, false)

	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.PingFrame{Id: 41}}))
	require.EqualValues(t, 0, atomic.LoadInt32(&h.outstandingPings))

	h.outstandingPingsAdd(1)
	require.EqualValues(t, 1, atomic.LoadInt32(&h.outstandingPings))

	require.NoError(t, h.HandleInbound([]frame.Frame{&frame.PingFrame{Id: 43}}))
	require.EqualValues(t, 0, atomic.LoadInt32(&h.outstandingPings))
}
