package transfer

import (
	"fmt"
	"io"
)

// DefaultChunkSize is the block size used on encrypted connections.
const DefaultChunkSize = 8192

// chunkedFile reads a fixed-length region of a file in blocks of at most
// chunkSize bytes. After the last block it reports end of input with io.EOF,
// which the engine turns into the end-of-body flush.
type chunkedFile struct {
	r         io.Reader
	length    int64
	offset    int64
	chunkSize int
	buf       []byte
}

func newChunkedFile(r io.Reader, length int64, chunkSize int) *chunkedFile {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &chunkedFile{r: r, length: length, chunkSize: chunkSize, buf: make([]byte, chunkSize)}
}

func (c *chunkedFile) isEndOfInput() bool { return c.offset >= c.length }

// readChunk returns the next block. The returned slice is only valid until
// the next call.
func (c *chunkedFile) readChunk() ([]byte, error) {
	if c.isEndOfInput() {
		return nil, io.EOF
	}
	n := int64(c.chunkSize)
	if remaining := c.length - c.offset; remaining < n {
		n = remaining
	}
	read, err := io.ReadFull(c.r, c.buf[:n])
	c.offset += int64(read)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("file shorter than expected: %d of %d bytes: %w", c.offset, c.length, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return c.buf[:read], nil
}

func (c *chunkedFile) progress() int64 { return c.offset }
