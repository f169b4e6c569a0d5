package spdy

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-spdy/spdymux/frame"
	"github.com/go-spdy/spdymux/session"
)

// Conn is a client connection multiplexing HTTP requests over a single SPDY
// session (the session.Handler owns stream lifecycle and flow control; Conn
// only translates http.Request/Response at the edges).
type Conn struct {
	nc     net.Conn
	framer frame.Framer
	h      *session.Handler

	mu      sync.Mutex
	pending map[frame.StreamId]*pendingRequest
}

type pendingRequest struct {
	headers chan http.Header
	rstErr  chan error
	bodyW   *io.PipeWriter
}

// NewConn starts a client session over nc. version selects whether flow
// control is active (session.Config.Version >= 3, spec.md §6).
func NewConn(nc net.Conn, version int) *Conn {
	c := &Conn{
		nc:      nc,
		framer:  frame.NewFramer(nc, nc),
		pending: make(map[frame.StreamId]*pendingRequest),
	}
	c.h = session.New(session.Config{Version: version, IsServer: false}, c.deliverUpstream, c.writeDownstream, netConnTransport{nc})
	go c.readLoop()
	return c
}

type netConnTransport struct{ c net.Conn }

func (t netConnTransport) Close() error { return t.c.Close() }

func (c *Conn) writeDownstream(f frame.Frame) error { return c.framer.WriteFrame(f) }

func (c *Conn) readLoop() {
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			return
		}
		_ = c.h.HandleInbound([]frame.Frame{f})
	}
}

func (c *Conn) register(id frame.StreamId) *pendingRequest {
	p := &pendingRequest{headers: make(chan http.Header, 1), rstErr: make(chan error, 1)}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()
	return p
}

func (c *Conn) unregister(id frame.StreamId) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// deliverUpstream is Handler's Upstream callback: it routes frames for a
// client-initiated stream back to the RoundTrip call that is waiting on it.
func (c *Conn) deliverUpstream(f frame.Frame) {
	switch v := f.(type) {
	case *frame.SynReplyFrame:
		c.mu.Lock()
		p := c.pending[v.StreamId]
		c.mu.Unlock()
		if p != nil {
			p.headers <- v.Headers
		}
	case *frame.DataFrame:
		c.mu.Lock()
		p := c.pending[v.StreamId]
		c.mu.Unlock()
		if p != nil && p.bodyW != nil {
			_, _ = p.bodyW.Write(v.Data)
			if v.Last() {
				p.bodyW.Close()
			}
		}
	case *frame.RstStreamFrame:
		c.mu.Lock()
		p := c.pending[v.StreamId]
		c.mu.Unlock()
		if p != nil {
			p.rstErr <- errors.New("spdy: stream reset: " + v.Status.String())
		}
	}
}

// RoundTrip implements http.RoundTripper by opening a new SPDY stream for
// the request and translating the reply back into an *http.Response. The
// request body, if any, is read fully and sent as a single DATA frame —
// this demo does not stream large bodies; a production gateway would chunk
// per session.Config.InitialWindow.
func (c *Conn) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	id := c.h.NextStreamId()
	p := c.register(id)
	defer c.unregister(id)

	noBody := len(body) == 0
	syn := &frame.SynStreamFrame{
		StreamId: id,
		Priority: 0,
		Headers:  requestHeaders(r),
	}
	if noBody {
		syn.CFHeader.Flags |= frame.ControlFlagFin
	}
	if err := c.h.HandleOutbound(syn); err != nil {
		return nil, err
	}
	if !noBody {
		if err := c.h.HandleOutbound(&frame.DataFrame{StreamId: id, Flags: frame.DataFlagFin, Data: body}); err != nil {
			return nil, err
		}
	}

	select {
	case hdr := <-p.headers:
		pr, pw := io.Pipe()
		p.bodyW = pw
		resp := &http.Response{
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     hdr,
			Body:       pr,
			Request:    r,
		}
		status := hdr.Get(headerStatus)
		if n, err := strconv.Atoi(firstField(status)); err == nil {
			resp.StatusCode = n
		} else {
			resp.StatusCode = http.StatusOK
		}
		return resp, nil
	case err := <-p.rstErr:
		return nil, err
	}
}

func firstField(s string) string {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s
	}
	return s[:i]
}
