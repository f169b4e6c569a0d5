// Package spdy is a thin demonstration of session.Handler wired to
// net/http: it maps http.Request/http.Response onto SPDY's pseudo-header
// convention and rides DATA frames for bodies. It is deliberately small —
// the HTTP message aggregation layer above the stream abstraction is out of
// scope for the multiplexing core (see session package), so this package
// exists only to show the core driving something recognizable, not to be a
// complete HTTP/SPDY gateway.
package spdy

import (
	"net/http"
	"strconv"
)

// Pseudo-header keys carried in SYN_STREAM/SYN_REPLY/HEADERS, per spec.md §6.
const (
	headerMethod  = ":method"
	headerPath    = ":path"
	headerVersion = ":version"
	headerHost    = ":host"
	headerScheme  = ":scheme"
	headerStatus  = ":status"
)

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func requestHeaders(r *http.Request) http.Header {
	h := make(http.Header, len(r.Header)+4)
	copyHeader(h, r.Header)
	h.Set(headerMethod, r.Method)
	h.Set(headerPath, r.URL.RequestURI())
	h.Set(headerVersion, "HTTP/1.1")
	h.Set(headerHost, r.URL.Host)
	h.Set(headerScheme, schemeOrDefault(r.URL.Scheme))
	return h
}

func schemeOrDefault(s string) string {
	if s == "" {
		return "https"
	}
	return s
}

func responseHeaders(status int) http.Header {
	h := make(http.Header, 1)
	h.Set(headerStatus, strconv.Itoa(status)+" "+http.StatusText(status))
	return h
}

func requestFromHeaders(h http.Header) (*http.Request, error) {
	path := h.Get(headerPath)
	req, err := http.NewRequest(h.Get(headerMethod), path, nil)
	if err != nil {
		return nil, err
	}
	req.Host = h.Get(headerHost)
	req.Header = make(http.Header, len(h))
	copyHeader(req.Header, h)
	req.Header.Del(headerMethod)
	req.Header.Del(headerPath)
	req.Header.Del(headerVersion)
	req.Header.Del(headerHost)
	req.Header.Del(headerScheme)
	return req, nil
}
