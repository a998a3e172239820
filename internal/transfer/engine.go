package transfer

import (
	"fmt"
	"io"
	"os"

	"example.com/staticd/internal/http1"
)

// DefaultRegionSize bounds each zero-copy write on plaintext connections so
// progress can be observed on large files.
const DefaultRegionSize = 4 << 20

// Engine writes a file response: status line and headers, then the body
// either as zero-copy file regions (plaintext) or as fixed-size blocks through
// the TLS layer (encrypted).
type Engine struct {
	RegionSize int64
	ChunkSize  int
}

// NewEngine returns an Engine with the default region and chunk sizes.
func NewEngine() *Engine {
	return &Engine{RegionSize: DefaultRegionSize, ChunkSize: DefaultChunkSize}
}

// Send writes a 200 response for f, whose body is the first length bytes of
// the file starting at its current offset.
//
// When keepAlive is false, or the transfer fails, the connection is closed
// before Send returns. A failed transfer is never retried.
func (e *Engine) Send(c *http1.Conn, f *os.File, length int64, headers http1.Headers, keepAlive bool) Result {
	res := Result{State: NotStarted, Total: length}

	if err := c.ArmWrite(); err != nil {
		return e.fail(c, res, err)
	}
	if err := http1.WriteHead(c.Writer(), 200, headers); err != nil {
		return e.fail(c, res, fmt.Errorf("writing response head: %w", err))
	}
	res.State = InProgress

	var err error
	if c.Encrypted {
		err = e.sendChunked(c, f, &res)
	} else {
		err = e.sendRegions(c, f, &res)
	}
	if err != nil {
		return e.fail(c, res, err)
	}

	// End of body. The body is Content-Length framed, so the marker carries
	// no bytes; it only pushes out anything still buffered.
	if err := c.ArmWrite(); err != nil {
		return e.fail(c, res, err)
	}
	if err := c.Flush(); err != nil {
		return e.fail(c, res, fmt.Errorf("flushing end of body: %w", err))
	}
	res.State = Completed

	if !keepAlive {
		c.Close()
	}
	return res
}

func (e *Engine) sendRegions(c *http1.Conn, f *os.File, res *Result) error {
	// The head goes out first so the kernel copy starts on an empty buffer.
	if err := c.Flush(); err != nil {
		return fmt.Errorf("flushing response head: %w", err)
	}

	region := e.RegionSize
	if region <= 0 {
		region = DefaultRegionSize
	}
	dst := c.NetConn()
	for res.Sent < res.Total {
		n := res.Total - res.Sent
		if n > region {
			n = region
		}
		if err := c.ArmWrite(); err != nil {
			return err
		}
		written, err := io.Copy(dst, &io.LimitedReader{R: f, N: n})
		res.Sent += written
		publish(c, res.Sent, res.Total)
		if err != nil {
			return fmt.Errorf("copying file region: %w", err)
		}
		if written < n {
			return fmt.Errorf("file shorter than expected: %d of %d bytes: %w", res.Sent, res.Total, io.ErrUnexpectedEOF)
		}
	}
	return nil
}

func (e *Engine) sendChunked(c *http1.Conn, f *os.File, res *Result) error {
	in := newChunkedFile(f, res.Total, e.ChunkSize)
	w := c.Writer()
	for {
		chunk, err := in.readChunk()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading file chunk: %w", err)
		}
		if err := c.ArmWrite(); err != nil {
			return err
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("writing file chunk: %w", err)
		}
		if err := c.Flush(); err != nil {
			return fmt.Errorf("writing file chunk: %w", err)
		}
		res.Sent = in.progress()
		publish(c, res.Sent, res.Total)
	}
}

func (e *Engine) fail(c *http1.Conn, res Result, err error) Result {
	res.State = Failed
	res.Err = err
	c.Close()
	return res
}

func publish(c *http1.Conn, sent, total int64) {
	if c.Progress == nil {
		return
	}
	select {
	case c.Progress <- http1.Progress{Sent: sent, Total: total}:
	default:
	}
}
