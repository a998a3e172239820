package staticfile

import (
	"html"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// allowedFileName rejects names with markup characters and names made only
// of '.', '_' and '-'.
var allowedFileName = regexp.MustCompile(`^[-._]*[^-._<>&"][^<>&"]*$`)

// ListingEntry is one candidate row of a directory listing.
type ListingEntry struct {
	Name     string
	Allowed  bool
	Readable bool
}

// Visible reports whether the entry appears in the rendered listing.
func (e ListingEntry) Visible() bool {
	return e.Allowed && e.Readable && !strings.HasPrefix(e.Name, ".")
}

// ListingRenderer renders minimal HTML directory listings.
type ListingRenderer struct{}

// Entries returns the entries of dir sorted by name, with the filter flags
// filled in.
func (ListingRenderer) Entries(dir string) ([]ListingEntry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]ListingEntry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		entries = append(entries, ListingEntry{
			Name:     name,
			Allowed:  allowedFileName.MatchString(name),
			Readable: isReadable(filepath.Join(dir, name)),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Render lists dir as an HTML page titled with requestPath. The parent link
// always comes first.
func (r ListingRenderer) Render(dir, requestPath string) (string, error) {
	entries, err := r.Entries(dir)
	if err != nil {
		return "", err
	}

	title := html.EscapeString(requestPath)
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\r\n")
	b.WriteString("<html><head><meta charset='utf-8' /><title>Listing of: ")
	b.WriteString(title)
	b.WriteString("</title></head><body>\r\n")
	b.WriteString("<h3>Listing of: ")
	b.WriteString(title)
	b.WriteString("</h3>\r\n")
	b.WriteString("<ul>")
	b.WriteString("<li><a href=\"../\">..</a></li>\r\n")
	for _, e := range entries {
		if !e.Visible() {
			continue
		}
		b.WriteString("<li><a href=\"")
		b.WriteString((&url.URL{Path: e.Name}).String())
		b.WriteString("\">")
		b.WriteString(e.Name)
		b.WriteString("</a></li>\r\n")
	}
	b.WriteString("</ul></body></html>\r\n")
	return b.String(), nil
}
