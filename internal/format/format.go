package format

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported output image format.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WebP Format = "webp"
	GIF  Format = "gif"
	AVIF Format = "avif"
)

// Info describes the static metadata of an output format. The conversion
// core consults this table instead of hardcoding mime strings or
// quality-capability decisions inline.
type Info struct {
	MimeType             string `json:"mime_type"`
	Extension            string `json:"extension"`
	SupportsQuality      bool   `json:"supports_quality"`
	SupportsTransparency bool   `json:"supports_transparency"`
}

var table = map[Format]Info{
	JPEG: {MimeType: "image/jpeg", Extension: "jpg", SupportsQuality: true, SupportsTransparency: false},
	PNG:  {MimeType: "image/png", Extension: "png", SupportsQuality: false, SupportsTransparency: true},
	WebP: {MimeType: "image/webp", Extension: "webp", SupportsQuality: true, SupportsTransparency: true},
	GIF:  {MimeType: "image/gif", Extension: "gif", SupportsQuality: false, SupportsTransparency: true},
	AVIF: {MimeType: "image/avif", Extension: "avif", SupportsQuality: true, SupportsTransparency: true},
}

// Lookup returns the metadata record for a format.
func Lookup(f Format) (Info, bool) {
	info, ok := table[f]
	return info, ok
}

// Parse normalizes a user-supplied format name.
func Parse(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WebP, nil
	case "gif":
		return GIF, nil
	case "avif":
		return AVIF, nil
	}
	return "", fmt.Errorf("unknown format: %q", s)
}

// All returns every format in the table.
func All() []Format {
	return []Format{JPEG, PNG, WebP, GIF, AVIF}
}

// IsDecodable reports whether a file looks like an image the pipeline can
// decode, judged by extension. Used by the watcher to filter events.
func IsDecodable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}
