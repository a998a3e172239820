package http1

import (
	"bufio"
	"net/http"
	"strconv"
	"strings"
)

// HeaderField represents a single HTTP header field (name-value pair).
type HeaderField struct {
	Name  string
	Value string
}

// Headers is an ordered list of response header fields. Fields are written in
// the order they were added.
type Headers []HeaderField

// Add appends a field and returns the extended list.
func (h Headers) Add(name, value string) Headers {
	return append(h, HeaderField{Name: name, Value: value})
}

// Get returns the value of the first field named name, compared
// case-insensitively, or "" if there is none.
func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Has reports whether a field named name is present.
func (h Headers) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// WriteHead writes an HTTP/1.1 status line followed by the header block and
// the terminating empty line. It does not flush.
func WriteHead(w *bufio.Writer, status int, headers Headers) error {
	w.WriteString("HTTP/1.1 ")
	w.WriteString(strconv.Itoa(status))
	w.WriteByte(' ')
	w.WriteString(http.StatusText(status))
	w.WriteString("\r\n")
	for _, f := range headers {
		w.WriteString(f.Name)
		w.WriteString(": ")
		w.WriteString(f.Value)
		w.WriteString("\r\n")
	}
	_, err := w.WriteString("\r\n")
	return err
}
