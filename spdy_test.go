package spdy

import (
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRoundTrip exercises conn.go and server.go together over a net.Pipe,
// confirming the demo wiring actually drives a request through
// session.Handler end to end (SYN_STREAM/DATA out, SYN_REPLY/DATA back).
func TestRoundTrip(t *testing.T) {
	clientNC, serverNC := net.Pipe()

	srv := &Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hello", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	})}
	go srv.serveConn(serverNC)

	c := NewConn(clientNC, 3)
	req, err := http.NewRequest(http.MethodGet, "https://example.com/hello", nil)
	require.NoError(t, err)

	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}
