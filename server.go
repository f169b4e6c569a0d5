package spdy

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/go-spdy/spdymux/frame"
	"github.com/go-spdy/spdymux/session"
	"github.com/go-spdy/spdymux/splog"
)

// Server serves an http.Handler over SPDY sessions. Each accepted
// connection gets its own session.Handler (spec.md §3 "Lifecycle": one
// SessionHandler per transport connection).
type Server struct {
	Handler http.Handler
	Version int // defaults to 3 (flow control enabled) if zero
	Logger  splog.Logger
}

func (s *Server) version() int {
	if s.Version == 0 {
		return 3
	}
	return s.Version
}

// Serve accepts connections from ln until it returns an error.
func (s *Server) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serveConn(nc)
	}
}

func (s *Server) serveConn(nc net.Conn) {
	sc := &serverConn{nc: nc, framer: frame.NewFramer(nc, nc), handler: s.Handler, streams: make(map[frame.StreamId]*serverStream)}
	sc.h = session.New(
		session.Config{Version: s.version(), IsServer: true, Logger: s.Logger},
		sc.deliverUpstream, sc.writeDownstream, netConnTransport{nc},
	)
	for {
		f, err := sc.framer.ReadFrame()
		if err != nil {
			sc.h.Close()
			return
		}
		_ = sc.h.HandleInbound([]frame.Frame{f})
	}
}

type serverConn struct {
	nc      net.Conn
	framer  frame.Framer
	handler http.Handler
	h       *session.Handler

	mu      sync.Mutex
	streams map[frame.StreamId]*serverStream
}

type serverStream struct {
	id   frame.StreamId
	hdr  http.Header
	body bytes.Buffer
	last bool
}

func (sc *serverConn) writeDownstream(f frame.Frame) error { return sc.framer.WriteFrame(f) }

// deliverUpstream buffers a request's body until the stream half-closes,
// then dispatches synchronously to the http.Handler. This demo does not
// stream large request bodies incrementally; see conn.go's RoundTrip for
// the matching simplification on the client side.
func (sc *serverConn) deliverUpstream(f frame.Frame) {
	switch v := f.(type) {
	case *frame.SynStreamFrame:
		sc.mu.Lock()
		sc.streams[v.StreamId] = &serverStream{id: v.StreamId, hdr: v.Headers, last: v.Last()}
		sc.mu.Unlock()
		if v.Last() {
			sc.dispatch(v.StreamId)
		}
	case *frame.DataFrame:
		sc.mu.Lock()
		st := sc.streams[v.StreamId]
		sc.mu.Unlock()
		if st == nil {
			return
		}
		st.body.Write(v.Data)
		if v.Last() {
			sc.dispatch(v.StreamId)
		}
	}
}

func (sc *serverConn) dispatch(id frame.StreamId) {
	sc.mu.Lock()
	st := sc.streams[id]
	delete(sc.streams, id)
	sc.mu.Unlock()
	if st == nil {
		return
	}

	req, err := requestFromHeaders(st.hdr)
	if err != nil {
		_ = sc.h.HandleOutbound(&frame.RstStreamFrame{StreamId: id, Status: frame.ProtocolError})
		return
	}
	req.Body = io.NopCloser(&st.body)

	w := &responseWriter{sc: sc, id: id, header: make(http.Header)}
	sc.handler.ServeHTTP(w, req)
	w.finish()
}

// responseWriter adapts http.ResponseWriter onto a SYN_REPLY followed by one
// DATA frame per Write; finish then sends an empty DATA frame marked last.
type responseWriter struct {
	sc         *serverConn
	id         frame.StreamId
	header     http.Header
	status     int
	wroteReply bool
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteReply {
		return
	}
	w.status = status
	hdr := responseHeaders(status)
	copyHeader(hdr, w.header)
	_ = w.sc.h.HandleOutbound(&frame.SynReplyFrame{StreamId: w.id, Headers: hdr})
	w.wroteReply = true
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteReply {
		w.WriteHeader(http.StatusOK)
	}
	if err := w.sc.h.HandleOutbound(&frame.DataFrame{StreamId: w.id, Data: p}); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *responseWriter) finish() {
	if !w.wroteReply {
		w.WriteHeader(http.StatusOK)
	}
	_ = w.sc.h.HandleOutbound(&frame.DataFrame{StreamId: w.id, Flags: frame.DataFlagFin})
}
