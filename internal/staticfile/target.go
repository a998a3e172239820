package staticfile

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind classifies a resolved filesystem target.
type Kind int

const (
	KindOther Kind = iota // device, FIFO, socket
	KindFile
	KindDirectory
)

// Target is the state of a resolved path at the time of one request. It is
// never cached.
type Target struct {
	Path    string
	Exists  bool
	Kind    Kind
	ModTime time.Time
	Size    int64 // regular files only
	Hidden  bool
}

// StatTarget inspects path, following symlinks. Any stat failure, including
// permission errors, reports a target that does not exist.
func StatTarget(path string) Target {
	t := Target{Path: path, Hidden: isHidden(path)}
	fi, err := os.Stat(path)
	if err != nil {
		return t
	}
	t.Exists = true
	t.ModTime = fi.ModTime()
	switch {
	case fi.Mode().IsRegular():
		t.Kind = KindFile
		t.Size = fi.Size()
	case fi.IsDir():
		t.Kind = KindDirectory
	default:
		t.Kind = KindOther
	}
	return t
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
