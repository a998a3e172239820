package staticfile

import "time"

// HTTPDateFormat is the layout accepted in If-Modified-Since. Responses are
// stamped with http.TimeFormat, which it parses.
const HTTPDateFormat = time.RFC1123

// CacheValidator decides conditional GET outcomes from Last-Modified alone.
type CacheValidator struct{}

// IsNotModified reports whether a client holding a copy dated
// ifModifiedSince may reuse it for a file last modified at lastModified.
// The comparison is by whole seconds. An empty header is never a match; a
// header that does not parse is returned as an error.
func (CacheValidator) IsNotModified(ifModifiedSince string, lastModified time.Time) (bool, error) {
	if ifModifiedSince == "" {
		return false, nil
	}
	since, err := time.Parse(HTTPDateFormat, ifModifiedSince)
	if err != nil {
		return false, err
	}
	return since.Unix() == lastModified.Unix(), nil
}
