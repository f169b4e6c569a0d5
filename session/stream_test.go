package session

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-spdy/spdymux/frame"
)

// TestSettings_PersistValueStrippedPersistedDropped covers spec.md §4.1's
// SETTINGS rule for the PERSIST_VALUE/PERSISTED flag pair: a PERSIST_VALUE
// flag must never reach the application (the session layer owns persistence,
// not the peer), and an entry the peer marked PERSISTED on a prior exchange
// is silently dropped rather than re-applied.
func TestSettings_PersistValueStrippedPersistedDropped(t *testing.T) {
	h, _, up, _ := newTestHandler(t, true)

	err := h.HandleInbound([]frame.Frame{
		&frame.SettingsFrame{FlagIdValues: []frame.SettingsFlagIdValue{
			{Id: frame.SettingsInitialWindowSize, Flag: frame.FlagSettingsPersistValue, Value: 1000},
			{Id: frame.SettingsMaxConcurrentStreams, Flag: frame.FlagSettingsPersisted, Value: 4},
		}},
	})
	require.NoError(t, err)

	got := up.frames()
	require.Len(t, got, 1)
	sf := got[0].(*frame.SettingsFrame)
	require.Len(t, sf.FlagIdValues, 1)
	require.Equal(t, frame.SettingsInitialWindowSize, sf.FlagIdValues[0].Id)
	require.Zero(t, sf.FlagIdValues[0].Flag&frame.FlagSettingsPersistValue)

	// The initial window size change still applies even though its own
	// PERSIST_VALUE flag was stripped from what's delivered upstream.
	require.EqualValues(t, 1000, h.initialSendWindow)

	// MAX_CONCURRENT_STREAMS was flagged PERSISTED by the peer, so it was
	// dropped entirely: the remote cap is untouched by this frame.
	require.Zero(t, h.remoteConcurrentStreams)
}

// TestSettings_MaxConcurrentStreamsShrinksAdmission covers spec.md §4.3's
// effective_max_concurrent_streams recomputation: shrinking the cap below
// the number of already-admitted streams must not evict them, but it must
// refuse a new admission once the (now smaller) semaphore has no permits
// left for it.
func TestSettings_MaxConcurrentStreamsShrinksAdmission(t *testing.T) {
	h, _, _, _ := newTestHandler(t, true)

	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}},
		&frame.SynStreamFrame{StreamId: 3, Headers: http.Header{}},
	}))
	require.Equal(t, 2, h.ActiveCount())

	require.NoError(t, h.HandleOutbound(&frame.SettingsFrame{FlagIdValues: []frame.SettingsFlagIdValue{
		{Id: frame.SettingsMaxConcurrentStreams, Value: 1},
	}}))
	require.EqualValues(t, 1, h.effectiveMaxConcurrentStreams)
	// Existing streams survive the shrink.
	require.Equal(t, 2, h.ActiveCount())

	// A third inbound stream is refused: the new semaphore only had one
	// permit, and the shrink already gave it to stream 1 (stream 3 holds
	// none).
	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.SynStreamFrame{StreamId: 5, Headers: http.Header{}},
	}))
	_, ok := h.table.Get(5)
	require.False(t, ok)
	require.Equal(t, 2, h.ActiveCount())

	// Closing one of the two pre-existing streams must free real capacity
	// back up, not leak it: the entry was reassigned to the live semaphore
	// by the shrink above, so its removal releases into the same instance
	// a fresh admission acquires from.
	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.RstStreamFrame{StreamId: 1, Status: frame.Cancel},
	}))
	require.Equal(t, 1, h.ActiveCount())

	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.SynStreamFrame{StreamId: 7, Headers: http.Header{}},
	}))
	_, ok = h.table.Get(7)
	require.True(t, ok)
	require.Equal(t, 2, h.ActiveCount())
}

// TestStreamEntry_RecvWindowLowerBoundInvariant is a focused check of the
// recv_window >= recv_window_lower_bound invariant (spec.md §3 invariant 3)
// directly against StreamEntry/Handler bookkeeping, independent of the
// shrink-then-overflow scenario already covered in session_test.go.
func TestStreamEntry_RecvWindowLowerBoundInvariant(t *testing.T) {
	h, _, _, _ := newTestHandler(t, true)

	require.NoError(t, h.HandleInbound([]frame.Frame{
		&frame.SynStreamFrame{StreamId: 1, Headers: http.Header{}},
	}))
	e, ok := h.table.Get(1)
	require.True(t, ok)
	require.Zero(t, e.recvWindowLowerBound)
	require.GreaterOrEqual(t, e.recvWindow, e.recvWindowLowerBound)

	h.sessionMu.Lock()
	h.updateInitialReceiveWindow(h.initialReceiveWindow - 2000)
	h.sessionMu.Unlock()

	e, _ = h.table.Get(1)
	require.EqualValues(t, -2000, e.recvWindowLowerBound)
	require.GreaterOrEqual(t, e.recvWindow, e.recvWindowLowerBound)
}
