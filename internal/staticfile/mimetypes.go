package staticfile

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"example.com/staticd/internal/config"
)

// defaultMimeTypes is consulted before Go's mime registry so common types do
// not depend on the host's mime.types files.
var defaultMimeTypes = map[string]string{
	".aac":   "audio/aac",
	".avif":  "image/avif",
	".bin":   "application/octet-stream",
	".bmp":   "image/bmp",
	".bz2":   "application/x-bzip2",
	".css":   "text/css; charset=utf-8",
	".csv":   "text/csv; charset=utf-8",
	".epub":  "application/epub+zip",
	".gif":   "image/gif",
	".gz":    "application/gzip",
	".htm":   "text/html; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".ico":   "image/vnd.microsoft.icon",
	".jar":   "application/java-archive",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "text/javascript; charset=utf-8",
	".json":  "application/json",
	".md":    "text/markdown; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".oga":   "audio/ogg",
	".ogv":   "video/ogg",
	".otf":   "font/otf",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".tar":   "application/x-tar",
	".tif":   "image/tiff",
	".tiff":  "image/tiff",
	".ttf":   "font/ttf",
	".txt":   "text/plain; charset=utf-8",
	".wasm":  "application/wasm",
	".wav":   "audio/wav",
	".webm":  "video/webm",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xml":   "application/xml; charset=utf-8",
	".zip":   "application/zip",
	".7z":    "application/x-7z-compressed",
}

const defaultOctetStreamMimeType = "application/octet-stream"

// MimeTypeResolver maps file names to media types.
type MimeTypeResolver struct {
	customMimeTypes map[string]string // keys lowercased, with leading dot
}

// NewMimeTypeResolver builds a resolver from the static section of the
// configuration. Entries from MimeTypesPath override the inline map.
func NewMimeTypeResolver(cfg *config.StaticConfig) (*MimeTypeResolver, error) {
	r := &MimeTypeResolver{customMimeTypes: make(map[string]string)}
	if cfg == nil {
		return r, nil
	}

	for ext, mt := range cfg.MimeTypes {
		r.customMimeTypes[strings.ToLower(ext)] = mt
	}

	if cfg.MimeTypesPath != nil && *cfg.MimeTypesPath != "" {
		fromFile, err := LoadCustomMimeTypesFromFile(*cfg.MimeTypesPath)
		if err != nil {
			return nil, &config.ConfigError{
				FilePath: *cfg.MimeTypesPath,
				Message:  "failed to load custom MIME types file",
				Err:      err,
			}
		}
		for ext, mt := range fromFile {
			r.customMimeTypes[ext] = mt
		}
	}
	return r, nil
}

// GetMimeType returns the media type for filePath: custom mappings first,
// then the built-in table, then Go's mime registry, then
// application/octet-stream.
func (r *MimeTypeResolver) GetMimeType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return defaultOctetStreamMimeType
	}
	if mt, ok := r.customMimeTypes[ext]; ok {
		return mt
	}
	if mt, ok := defaultMimeTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return defaultOctetStreamMimeType
}

// LoadCustomMimeTypesFromFile reads a JSON object mapping extensions to media
// types. Extensions must start with '.' and types must not be empty.
// Returned keys are lowercased.
func LoadCustomMimeTypesFromFile(filePath string) (map[string]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIME types file %q: %w", filePath, err)
	}

	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from MIME types file %q: %w", filePath, err)
	}

	out := make(map[string]string, len(parsed))
	for ext, mt := range parsed {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("invalid extension %q in MIME types file %q: must start with a '.'", ext, filePath)
		}
		if mt == "" {
			return nil, fmt.Errorf("empty MIME type for extension %q in MIME types file %q", ext, filePath)
		}
		out[strings.ToLower(ext)] = mt
	}
	return out, nil
}
