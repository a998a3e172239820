package staticfile

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrForbiddenPath is returned for request paths that are empty, not
	// absolute, or could escape the root or carry markup characters.
	ErrForbiddenPath = errors.New("staticfile: forbidden request path")
	// ErrURIDecode is returned when the request path is not valid
	// percent-encoded UTF-8. It is treated as an internal failure.
	ErrURIDecode = errors.New("staticfile: request path could not be decoded")
	// ErrNotFound is returned when the target is missing, hidden or not a
	// regular file or directory.
	ErrNotFound = errors.New("staticfile: not found")
)

// PathResolver maps request URIs onto paths below Root.
type PathResolver struct {
	Root string
}

// NewPathResolver returns a resolver for root. An empty root means the
// process working directory.
func NewPathResolver(root string) (*PathResolver, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &PathResolver{Root: abs}, nil
}

// Resolve implements the dispatcher's path resolution step.
func (p *PathResolver) Resolve(requestURI string) (string, error) {
	return Resolve(requestURI, p.Root)
}

// Resolve decodes and sanitizes requestURI and joins it onto root.
//
// The query string is not part of the path. Percent escapes are decoded as
// UTF-8 without turning '+' into a space. The decoded path must start with
// '/' and, after translation to host separators, must not contain a
// separator next to a dot, start or end with a dot, or contain any of
// < > & ". The joined path must also stay below root after cleaning.
func Resolve(requestURI, root string) (string, error) {
	raw := requestURI
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil || !utf8.ValidString(decoded) {
		return "", ErrURIDecode
	}

	if decoded == "" || decoded[0] != '/' {
		return "", ErrForbiddenPath
	}

	path := filepath.FromSlash(decoded)
	sep := string(filepath.Separator)
	if strings.Contains(path, sep+".") ||
		strings.Contains(path, "."+sep) ||
		strings.HasPrefix(path, ".") ||
		strings.HasSuffix(path, ".") ||
		strings.ContainsAny(path, `<>&"`) {
		return "", ErrForbiddenPath
	}

	cleanRoot := filepath.Clean(root)
	full := filepath.Clean(cleanRoot + path)
	if full != cleanRoot && !strings.HasPrefix(full, strings.TrimSuffix(cleanRoot, sep)+sep) {
		return "", ErrForbiddenPath
	}
	return full, nil
}
