package staticfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := filepath.FromSlash("/srv/www")

	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr error
	}{
		{"simple file", "/a/b.txt", "/srv/www/a/b.txt", nil},
		{"root", "/", "/srv/www", nil},
		{"directory with slash", "/docs/", "/srv/www/docs", nil},
		{"percent encoded space", "/a%20b.txt", "/srv/www/a b.txt", nil},
		{"plus stays plus", "/a+b.txt", "/srv/www/a+b.txt", nil},
		{"utf-8 name", "/caf%C3%A9.txt", "/srv/www/café.txt", nil},
		{"query removed", "/a.txt?x=../../etc", "/srv/www/a.txt", nil},
		{"dots inside name", "/a..b.txt", "/srv/www/a..b.txt", nil},
		{"empty", "", "", ErrForbiddenPath},
		{"relative", "a.txt", "", ErrForbiddenPath},
		{"parent traversal", "/../etc/passwd", "", ErrForbiddenPath},
		{"nested traversal", "/secret/../../etc/passwd", "", ErrForbiddenPath},
		{"encoded traversal", "/%2e%2e/etc/passwd", "", ErrForbiddenPath},
		{"encoded relative", "%2e%2e/x", "", ErrForbiddenPath},
		{"hidden segment", "/.git/config", "", ErrForbiddenPath},
		{"dot before separator", "/a./b", "", ErrForbiddenPath},
		{"trailing dot", "/a.", "", ErrForbiddenPath},
		{"less than", "/a%3Cb", "", ErrForbiddenPath},
		{"greater than", "/a>b", "", ErrForbiddenPath},
		{"ampersand", "/a&b", "", ErrForbiddenPath},
		{"quote", "/a%22b", "", ErrForbiddenPath},
		{"malformed escape", "/%zz", "", ErrURIDecode},
		{"truncated escape", "/abc%2", "", ErrURIDecode},
		{"invalid utf-8", "/%ff%fe", "", ErrURIDecode},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.uri, root)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, got, "rejections must not leak a path")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tc.want), got)
		})
	}
}

func TestResolve_AlwaysRooted(t *testing.T) {
	root := t.TempDir()
	inputs := []string{
		"/", "/x", "/x/y/z", "/x//y", "/%2Fetc", "//etc/passwd", "/a/%2e/b",
		"/a/..%2f..%2fb", "/~root", "/a b", "/" + strings.Repeat("d/", 50) + "f",
	}
	for _, in := range inputs {
		got, err := Resolve(in, root)
		if err != nil {
			continue
		}
		assert.True(t, got == root || strings.HasPrefix(got, root+string(filepath.Separator)),
			"%q resolved outside root: %q", in, got)
	}
}

func TestNewPathResolver_DefaultsToWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	p, err := NewPathResolver("")
	require.NoError(t, err)
	wd, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(p.Root)
	require.NoError(t, err)
	assert.Equal(t, wd, got)

	full, err := p.Resolve("/index.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Root, "index.html"), full)
}
