//go:build unix

package staticfile

import "golang.org/x/sys/unix"

// isReadable reports whether the process may read path.
func isReadable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}
