package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// FileSpec describes one entry of a test document root.
type FileSpec struct {
	Path    string // relative to the root, slash separated
	Content string
	IsDir   bool
	Mode    os.FileMode // 0 means 0644 for files and 0755 for directories
	ModTime time.Time   // zero leaves the creation time
}

// SetupDocumentRoot creates the given entries under a fresh temporary
// directory and returns its path.
func SetupDocumentRoot(t *testing.T, files []FileSpec) string {
	t.Helper()
	root := t.TempDir()
	for _, fs := range files {
		full := filepath.Join(root, filepath.FromSlash(fs.Path))
		if fs.IsDir {
			mode := fs.Mode
			if mode == 0 {
				mode = 0755
			}
			if err := os.MkdirAll(full, mode); err != nil {
				t.Fatalf("creating directory %s: %v", full, err)
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
				t.Fatalf("creating parent of %s: %v", full, err)
			}
			mode := fs.Mode
			if mode == 0 {
				mode = 0644
			}
			if err := os.WriteFile(full, []byte(fs.Content), mode); err != nil {
				t.Fatalf("writing file %s: %v", full, err)
			}
			// WriteFile applies the umask on create.
			if err := os.Chmod(full, mode); err != nil {
				t.Fatalf("chmod %s: %v", full, err)
			}
		}
		if !fs.ModTime.IsZero() {
			if err := os.Chtimes(full, fs.ModTime, fs.ModTime); err != nil {
				t.Fatalf("setting times on %s: %v", full, err)
			}
		}
	}
	return root
}
