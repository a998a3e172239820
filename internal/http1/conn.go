package http1

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrHeadTooLarge is returned when a request head exceeds the configured limit.
var ErrHeadTooLarge = errors.New("http1: request head too large")

// Progress reports how many body bytes of the current transfer have been
// written. Total is -1 when the length is unknown.
type Progress struct {
	Sent  int64
	Total int64
}

// Conn is the per-connection context shared by the request reader, the
// dispatcher and the transfer engine. It is owned by exactly one goroutine.
type Conn struct {
	netConn net.Conn
	lr      *io.LimitedReader // bounds the request head; lifted once the head is read
	br      *bufio.Reader
	bw      *bufio.Writer

	maxHeadBytes int64

	// Encrypted is true when netConn terminates TLS in-process.
	Encrypted bool
	// WriteTimeout bounds each unit of response output (head, region or
	// chunk). Zero disables the deadline.
	WriteTimeout time.Duration
	// Progress, when non-nil, receives transfer progress. Sends never block.
	Progress chan<- Progress

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps nc. maxHeadBytes bounds the request line plus headers.
func NewConn(nc net.Conn, maxHeadBytes int) *Conn {
	c := &Conn{
		netConn:      nc,
		maxHeadBytes: int64(maxHeadBytes),
	}
	_, c.Encrypted = nc.(*tls.Conn)
	c.lr = &io.LimitedReader{R: nc, N: math.MaxInt64}
	c.br = bufio.NewReader(c.lr)
	c.bw = bufio.NewWriter(nc)
	return c
}

// NetConn returns the underlying connection. Plaintext transfers write file
// regions to it directly so the kernel can copy without user-space buffers.
func (c *Conn) NetConn() net.Conn { return c.netConn }

// Writer returns the buffered response writer.
func (c *Conn) Writer() *bufio.Writer { return c.bw }

// Flush writes any buffered response bytes to the connection.
func (c *Conn) Flush() error { return c.bw.Flush() }

// ArmWrite extends the write deadline by WriteTimeout from now.
func (c *Conn) ArmWrite() error {
	if c.WriteTimeout <= 0 {
		return nil
	}
	return c.netConn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
}

// AwaitRequest blocks until at least one byte of the next request is
// available or the read deadline passes.
func (c *Conn) AwaitRequest() error {
	_, err := c.br.Peek(1)
	return err
}

// ReadRequest reads and decodes the next request head.
//
// io.EOF is returned when the peer closed the connection before sending any
// byte. Other I/O errors (timeouts, resets) are returned as is. A head that
// is malformed or larger than the limit yields a Request with DecodeOK false
// and a nil error; ErrHeadTooLarge is returned alongside it in the latter case.
func (c *Conn) ReadRequest() (*Request, error) {
	c.lr.N = c.maxHeadBytes
	r, err := http.ReadRequest(c.br)
	hitLimit := c.lr.N <= 0
	c.lr.N = math.MaxInt64

	if err != nil {
		if hitLimit {
			return failedRequest(), ErrHeadTooLarge
		}
		var ne net.Error
		switch {
		case err == io.EOF, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed), errors.As(err, &ne):
			return nil, err
		}
		return failedRequest(), nil
	}
	return newRequest(r), nil
}

const (
	lingerTimeout  = 250 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// Close closes the underlying connection. It is safe to call more than once.
//
// On plain TCP the write side is shut down first and input that is still
// arriving is discarded for a short while, so a peer that has not finished
// sending its request reads our final response instead of a reset.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if tc, ok := c.netConn.(*net.TCPConn); ok {
			if tc.CloseWrite() == nil {
				tc.SetReadDeadline(time.Now().Add(lingerTimeout))
				io.Copy(io.Discard, io.LimitReader(tc, maxLingerBytes))
			}
		}
		c.closeErr = c.netConn.Close()
	})
	return c.closeErr
}
