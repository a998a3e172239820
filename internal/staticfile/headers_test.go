package staticfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/staticd/internal/http1"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHeaderBuilder_Build(t *testing.T) {
	mimes, err := NewMimeTypeResolver(nil)
	require.NoError(t, err)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b := &HeaderBuilder{Mime: mimes, Now: fixedClock(now)}

	target := Target{
		Path:    "/srv/report.pdf",
		Exists:  true,
		Kind:    KindFile,
		Size:    12345,
		ModTime: time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
	}

	h := b.Build(target, true)
	want := http1.Headers{
		{Name: "Content-Type", Value: "application/pdf"},
		{Name: "Content-Length", Value: "12345"},
		{Name: "Date", Value: "Tue, 02 Jan 2024 03:04:05 GMT"},
		{Name: "Expires", Value: "Tue, 02 Jan 2024 03:05:05 GMT"},
		{Name: "Cache-Control", Value: "private, max-age=60"},
		{Name: "Last-Modified", Value: "Sun, 31 Dec 2023 23:59:59 GMT"},
		{Name: "Connection", Value: "keep-alive"},
	}
	assert.Equal(t, want, h)

	closing := b.Build(target, false)
	assert.Equal(t, want[:6], closing)
	assert.False(t, closing.Has("Connection"))
}

func TestHeaderBuilder_NonUTCClock(t *testing.T) {
	mimes, err := NewMimeTypeResolver(nil)
	require.NoError(t, err)
	loc := time.FixedZone("X", -7*3600)
	b := &HeaderBuilder{Mime: mimes, Now: fixedClock(time.Date(2024, 1, 1, 20, 0, 0, 0, loc))}

	h := b.Build(Target{Path: "/x.bin", ModTime: time.Date(2024, 1, 1, 0, 0, 0, 0, loc)}, false)
	assert.Equal(t, "Tue, 02 Jan 2024 03:00:00 GMT", h.Get("Date"))
	assert.Equal(t, "Mon, 01 Jan 2024 07:00:00 GMT", h.Get("Last-Modified"))
	assert.Equal(t, "0", h.Get("Content-Length"))
}
