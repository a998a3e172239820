package server

import (
	"example.com/staticd/internal/http1"
	"example.com/staticd/internal/staticfile"
)

// Handler answers one decoded request on a connection. Unless the returned
// outcome keeps the connection alive, the handler has closed it.
type Handler interface {
	Serve(c *http1.Conn, req *http1.Request) staticfile.Outcome
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(c *http1.Conn, req *http1.Request) staticfile.Outcome

// Serve calls f(c, req).
func (f HandlerFunc) Serve(c *http1.Conn, req *http1.Request) staticfile.Outcome {
	return f(c, req)
}
