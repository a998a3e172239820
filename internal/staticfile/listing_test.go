package staticfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/staticd/internal/testutil"
)

func countLinks(page string) int {
	return strings.Count(page, "<li><a href=")
}

func TestListingRenderer_FiltersEntries(t *testing.T) {
	root := testutil.SetupDocumentRoot(t, []testutil.FileSpec{
		{Path: ".git", IsDir: true},
		{Path: "readme.txt", Content: "hi"},
		{Path: "a<b.txt", Content: "x"},
	})

	page, err := ListingRenderer{}.Render(root, "/")
	require.NoError(t, err)

	assert.Equal(t, 2, countLinks(page), "parent link plus readme.txt")
	assert.Contains(t, page, `<li><a href="../">..</a></li>`)
	assert.Contains(t, page, `<li><a href="readme.txt">readme.txt</a></li>`)
	assert.NotContains(t, page, ".git")
	assert.NotContains(t, page, "a<b")
}

func TestListingRenderer_Structure(t *testing.T) {
	root := testutil.SetupDocumentRoot(t, []testutil.FileSpec{
		{Path: "zeta.txt"},
		{Path: "alpha", IsDir: true},
		{Path: "mid dle.txt"},
		{Path: "___"},
		{Path: "-._"},
		{Path: "_config.yml"},
	})

	page, err := ListingRenderer{}.Render(root, "/docs/")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>\r\n"))
	assert.Contains(t, page, "<title>Listing of: /docs/</title>")
	assert.Contains(t, page, "<h3>Listing of: /docs/</h3>")

	parent := strings.Index(page, `href="../"`)
	alpha := strings.Index(page, `href="alpha"`)
	config := strings.Index(page, `href="_config.yml"`)
	middle := strings.Index(page, `href="mid%20dle.txt">mid dle.txt<`)
	zeta := strings.Index(page, `href="zeta.txt"`)
	require.True(t, parent >= 0 && alpha >= 0 && config >= 0 && middle >= 0 && zeta >= 0, page)
	assert.True(t, parent < config && config < alpha && alpha < middle && middle < zeta, "entries must be sorted by name after the parent link")

	assert.NotContains(t, page, `href="___"`)
	assert.NotContains(t, page, `href="-._"`)
	assert.Equal(t, 5, countLinks(page))
}

func TestListingRenderer_EscapesTitle(t *testing.T) {
	root := t.TempDir()
	page, err := ListingRenderer{}.Render(root, "/a'b/")
	require.NoError(t, err)
	assert.Contains(t, page, "<title>Listing of: /a&#39;b/</title>")
}

func TestListingRenderer_SkipsUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not restrict root")
	}
	root := testutil.SetupDocumentRoot(t, []testutil.FileSpec{
		{Path: "open.txt", Content: "x"},
		{Path: "closed.txt", Content: "x", Mode: 0200},
	})

	page, err := ListingRenderer{}.Render(root, "/")
	require.NoError(t, err)
	assert.Contains(t, page, "open.txt")
	assert.NotContains(t, page, "closed.txt")
}

func TestListingRenderer_MissingDirectory(t *testing.T) {
	_, err := ListingRenderer{}.Render(filepath.Join(t.TempDir(), "nope"), "/nope/")
	assert.Error(t, err)
}

func TestListingEntry_Visible(t *testing.T) {
	assert.True(t, ListingEntry{Name: "a", Allowed: true, Readable: true}.Visible())
	assert.False(t, ListingEntry{Name: ".a", Allowed: true, Readable: true}.Visible())
	assert.False(t, ListingEntry{Name: "a", Allowed: false, Readable: true}.Visible())
	assert.False(t, ListingEntry{Name: "a", Allowed: true, Readable: false}.Visible())
}
