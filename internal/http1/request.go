package http1

import (
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/http/httpguts"
)

// Request is the decoded form of one HTTP/1.x request head.
//
// A request whose head could not be decoded is still returned, with DecodeOK
// false and only the fields that were recovered populated; it is answered
// with 400.
type Request struct {
	Method     string
	URI        string // request target exactly as received, still percent-encoded
	Header     http.Header
	ProtoMajor int
	ProtoMinor int
	DecodeOK   bool
	Body       io.ReadCloser

	// close is set when the head asked for the connection to be closed.
	// net/http strips "Connection: close" from the header map when it
	// records this, so the header alone is not enough.
	close bool
}

func newRequest(r *http.Request) *Request {
	return &Request{
		Method:     r.Method,
		URI:        r.RequestURI,
		Header:     r.Header,
		ProtoMajor: r.ProtoMajor,
		ProtoMinor: r.ProtoMinor,
		DecodeOK:   true,
		Body:       r.Body,
		close:      r.Close,
	}
}

func failedRequest() *Request {
	return &Request{Header: http.Header{}, Body: http.NoBody}
}

// Proto returns the protocol version as written on the request line.
func (r *Request) Proto() string {
	if !r.DecodeOK {
		return ""
	}
	return fmt.Sprintf("HTTP/%d.%d", r.ProtoMajor, r.ProtoMinor)
}

// KeepAlive reports whether the client asked for the connection to persist.
// A "close" token always wins; HTTP/1.1 persists by default and HTTP/1.0
// persists only with an explicit "keep-alive" token.
func (r *Request) KeepAlive() bool {
	if !r.DecodeOK {
		return false
	}
	conn := r.Header["Connection"]
	if r.close || httpguts.HeaderValuesContainsToken(conn, "close") {
		return false
	}
	if r.ProtoMajor == 1 && r.ProtoMinor == 0 {
		return httpguts.HeaderValuesContainsToken(conn, "keep-alive")
	}
	return r.ProtoMajor >= 1
}
