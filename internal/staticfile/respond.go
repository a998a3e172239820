package staticfile

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"example.com/staticd/internal/http1"
)

const (
	plainTextContentType = "text/plain; charset=UTF-8"
	htmlContentType      = "text/html; charset=UTF-8"
)

// failureBody is the plain-text body of an error response. It never names
// the requested path.
func failureBody(status int) []byte {
	return []byte(fmt.Sprintf("Failure: %d %s\r\n", status, http.StatusText(status)))
}

// writeSimple writes a complete non-transfer response. Content-Length and
// Connection: close are appended to h. It returns the number of body bytes
// written.
func writeSimple(c *http1.Conn, status int, h http1.Headers, body []byte) (int64, error) {
	h = h.Add("Content-Length", strconv.Itoa(len(body))).
		Add("Connection", "close")
	if err := c.ArmWrite(); err != nil {
		return 0, err
	}
	if err := http1.WriteHead(c.Writer(), status, h); err != nil {
		return 0, err
	}
	n, err := c.Writer().Write(body)
	if err != nil {
		return int64(n), err
	}
	return int64(n), c.Flush()
}

func writeFailure(c *http1.Conn, status int) (int64, error) {
	h := http1.Headers{}.Add("Content-Type", plainTextContentType)
	return writeSimple(c, status, h, failureBody(status))
}

func writeRedirect(c *http1.Conn, location string) (int64, error) {
	h := http1.Headers{}.Add("Location", location)
	return writeSimple(c, http.StatusFound, h, nil)
}

func writeNotModified(c *http1.Conn, now time.Time) (int64, error) {
	h := http1.Headers{}.Add("Date", now.UTC().Format(http.TimeFormat))
	return writeSimple(c, http.StatusNotModified, h, nil)
}

func writeListing(c *http1.Conn, page string) (int64, error) {
	h := http1.Headers{}.Add("Content-Type", htmlContentType)
	return writeSimple(c, http.StatusOK, h, []byte(page))
}
