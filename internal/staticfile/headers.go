package staticfile

import (
	"net/http"
	"strconv"
	"time"

	"example.com/staticd/internal/http1"
)

// HTTPCacheSeconds is the max-age advertised for file responses.
const HTTPCacheSeconds = 60

// HeaderBuilder produces the header block of a 200 file response.
type HeaderBuilder struct {
	Mime *MimeTypeResolver
	Now  func() time.Time // nil means time.Now
}

func (b *HeaderBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build returns, in order: Content-Type, Content-Length, Date, Expires,
// Cache-Control, Last-Modified and, when keepAlive is set, Connection.
func (b *HeaderBuilder) Build(t Target, keepAlive bool) http1.Headers {
	now := b.now().UTC()
	h := make(http1.Headers, 0, 7).
		Add("Content-Type", b.Mime.GetMimeType(t.Path)).
		Add("Content-Length", strconv.FormatInt(t.Size, 10)).
		Add("Date", now.Format(http.TimeFormat)).
		Add("Expires", now.Add(HTTPCacheSeconds*time.Second).Format(http.TimeFormat)).
		Add("Cache-Control", "private, max-age="+strconv.Itoa(HTTPCacheSeconds)).
		Add("Last-Modified", t.ModTime.UTC().Format(http.TimeFormat))
	if keepAlive {
		h = h.Add("Connection", "keep-alive")
	}
	return h
}
