package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"example.com/staticd/internal/http1"
	"example.com/staticd/internal/logger"
	"example.com/staticd/internal/staticfile"
	"example.com/staticd/internal/transfer"
)

// serveConn runs the request loop of one accepted connection. Requests are
// handled strictly one after another: response n is fully written before
// request n+1 is read.
func (s *Server) serveConn(nc net.Conn) {
	defer s.untrack(nc)

	id := s.nextConnID.Add(1)
	lg := s.log.With(logger.LogFields{
		"conn":        id,
		"remote_addr": nc.RemoteAddr().String(),
	})

	rwc := nc
	if s.tlsConfig != nil {
		tc, err := s.handshake(nc)
		if err != nil {
			lg.Debug("TLS handshake failed", logger.LogFields{"error": err.Error()})
			nc.Close()
			return
		}
		rwc = tc
	}

	c := http1.NewConn(rwc, s.maxHead)
	c.WriteTimeout = s.timeouts.Write
	defer c.Close()

	if lg.DebugEnabled() {
		progress := make(chan http1.Progress, 16)
		c.Progress = progress
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			logProgress(lg, progress)
		}()
		defer func() {
			close(progress)
			<-drained
		}()
	}

	for first := true; ; first = false {
		if !first {
			if s.setReadDeadline(nc, s.timeouts.Idle) != nil || s.shuttingDown.Load() {
				return
			}
			if err := c.AwaitRequest(); err != nil {
				return
			}
		}
		if s.setReadDeadline(nc, s.timeouts.Read) != nil || s.shuttingDown.Load() {
			return
		}

		start := time.Now()
		req, err := c.ReadRequest()
		if req == nil {
			if err != nil && !isQuietClose(err) {
				lg.Debug("Failed to read request", logger.LogFields{"error": err.Error()})
			}
			return
		}
		if errors.Is(err, http1.ErrHeadTooLarge) {
			lg.Debug("Request head exceeds limit", logger.LogFields{"limit": s.maxHead})
		}

		out := s.handler.Serve(c, req)
		s.logAccess(id, nc, req, out, time.Since(start))

		if !out.KeepAlive {
			return
		}
		if err := s.discardBody(nc, req); err != nil {
			lg.Debug("Closing connection with unread request body", logger.LogFields{"error": err.Error()})
			return
		}
	}
}

func (s *Server) handshake(nc net.Conn) (*tls.Conn, error) {
	tc := tls.Server(nc, s.tlsConfig)
	ctx := context.Background()
	if s.timeouts.Read > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeouts.Read)
		defer cancel()
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tc, nil
}

// setReadDeadline arms the read deadline d from now; zero clears it.
func (s *Server) setReadDeadline(nc net.Conn, d time.Duration) error {
	if d <= 0 {
		return nc.SetReadDeadline(time.Time{})
	}
	return nc.SetReadDeadline(time.Now().Add(d))
}

var errBodyTooLarge = errors.New("request body exceeds drain limit")

// discardBody consumes what is left of the request body so the next request
// head starts at the right byte.
func (s *Server) discardBody(nc net.Conn, req *http1.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if err := s.setReadDeadline(nc, s.timeouts.Read); err != nil {
		return err
	}
	n, err := io.CopyN(io.Discard, req.Body, maxBodyDrain+1)
	if n > maxBodyDrain {
		return errBodyTooLarge
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (s *Server) logAccess(id uint64, nc net.Conn, req *http1.Request, out staticfile.Outcome, d time.Duration) {
	if out.Status == 0 {
		return
	}
	e := logger.AccessEntry{
		ConnID:     id,
		RemoteAddr: nc.RemoteAddr().String(),
		Method:     req.Method,
		URI:        req.URI,
		Proto:      req.Proto(),
		Status:     out.Status,
		Bytes:      out.Sent,
		KeepAlive:  out.KeepAlive,
		Duration:   d,
		UserAgent:  req.Header.Get("User-Agent"),
	}
	if out.State != transfer.NotStarted {
		e.Transfer = out.State.String()
	}
	s.log.Access(e)
}

func logProgress(lg *logger.Logger, progress <-chan http1.Progress) {
	for p := range progress {
		total := "unknown"
		if p.Total >= 0 {
			total = humanize.IBytes(uint64(p.Total))
		}
		lg.Debug("Transfer progress", logger.LogFields{
			"sent":  humanize.IBytes(uint64(p.Sent)),
			"total": total,
		})
	}
}

// isQuietClose reports errors that end a connection without being worth a
// log line: the peer went away or an idle/read deadline passed.
func isQuietClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
