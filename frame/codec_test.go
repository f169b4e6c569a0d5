package frame

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeFramers() (Framer, Framer) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return NewFramer(ar, aw), NewFramer(br, bw)
}

func roundTrip(t *testing.T, f Frame) Frame {
	t.Helper()
	a, b := pipeFramers()
	done := make(chan error, 1)
	go func() { done <- a.WriteFrame(f) }()
	got, err := b.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	return got
}

func TestRoundTripDataFrame(t *testing.T) {
	got := roundTrip(t, &DataFrame{StreamId: 3, Flags: DataFlagFin, Data: []byte("hello")})
	df, ok := got.(*DataFrame)
	require.True(t, ok)
	require.Equal(t, StreamId(3), df.StreamId)
	require.True(t, df.Last())
	require.Equal(t, []byte("hello"), df.Data)
}

func TestRoundTripSynStream(t *testing.T) {
	h := http.Header{"X": {"y"}}
	got := roundTrip(t, &SynStreamFrame{
		StreamId: 1,
		Priority: 5,
		CFHeader: ControlFrameHeader{Flags: ControlFlagFin},
		Headers:  h,
	})
	sf, ok := got.(*SynStreamFrame)
	require.True(t, ok)
	require.Equal(t, StreamId(1), sf.StreamId)
	require.EqualValues(t, 5, sf.Priority)
	require.True(t, sf.Last())
	require.Equal(t, h, sf.Headers)
}

func TestRoundTripSettings(t *testing.T) {
	got := roundTrip(t, &SettingsFrame{FlagIdValues: []SettingsFlagIdValue{
		{Id: SettingsInitialWindowSize, Value: 1024},
		{Id: SettingsMaxConcurrentStreams, Value: 10, Flag: FlagSettingsPersistValue},
	}})
	sf, ok := got.(*SettingsFrame)
	require.True(t, ok)
	require.Len(t, sf.FlagIdValues, 2)
}

func TestRoundTripWindowUpdate(t *testing.T) {
	got := roundTrip(t, &WindowUpdateFrame{StreamId: 7, DeltaWindowSize: 40000})
	wf, ok := got.(*WindowUpdateFrame)
	require.True(t, ok)
	require.Equal(t, StreamId(7), wf.StreamId)
	require.EqualValues(t, 40000, wf.DeltaWindowSize)
}

func TestRoundTripGoAway(t *testing.T) {
	got := roundTrip(t, &GoAwayFrame{LastGoodStreamId: 9, Status: GoAwayProtocolError})
	gf, ok := got.(*GoAwayFrame)
	require.True(t, ok)
	require.Equal(t, StreamId(9), gf.LastGoodStreamId)
	require.Equal(t, GoAwayProtocolError, gf.Status)
}
