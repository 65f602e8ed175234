package format

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// EncodeOptions carries encoder parameters for one encode call.
// Quality is nil when the target format does not take a quality parameter;
// encoders must not invent a default in that case.
type EncodeOptions struct {
	Quality *int // 1-100, nil for lossless formats
}

// Encoder serializes a decoded raster into one output format.
type Encoder interface {
	// Format returns the output format this encoder produces.
	Format() Format

	// Available reports whether the encoder can run in this environment
	// (external tool encoders check the PATH).
	Available() bool

	// Encode serializes img to the target format.
	Encode(ctx context.Context, img image.Image, opts EncodeOptions) ([]byte, error)
}

var (
	registry = make(map[Format]Encoder)
	mu       sync.RWMutex
	disabled = make(map[Format]bool)
)

// Register registers an encoder in the global registry.
func Register(e Encoder) {
	mu.Lock()
	defer mu.Unlock()
	registry[e.Format()] = e
}

// GetEncoder retrieves the encoder for a format.
func GetEncoder(f Format) (Encoder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if disabled[f] {
		return nil, false
	}
	e, ok := registry[f]
	return e, ok
}

// ListEncoders returns every registered encoder.
func ListEncoders() []Encoder {
	mu.RLock()
	defer mu.RUnlock()
	encoders := make([]Encoder, 0, len(registry))
	for _, e := range registry {
		encoders = append(encoders, e)
	}
	return encoders
}

// Enable enables an encoder by format.
func Enable(f Format) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[f]; !ok {
		return fmt.Errorf("encoder not found: %s", f)
	}
	delete(disabled, f)
	return nil
}

// Disable disables an encoder by format.
func Disable(f Format) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[f]; !ok {
		return fmt.Errorf("encoder not found: %s", f)
	}
	disabled[f] = true
	return nil
}

// IsEnabled checks if an encoder is enabled.
func IsEnabled(f Format) bool {
	mu.RLock()
	defer mu.RUnlock()
	return !disabled[f]
}

// EncoderInfo provides information about a registered encoder.
type EncoderInfo struct {
	Format    Format `json:"format"`
	MimeType  string `json:"mime_type"`
	Available bool   `json:"available"`
	Enabled   bool   `json:"enabled"`
}

// ListInfo returns information about all registered encoders.
func ListInfo() []EncoderInfo {
	mu.RLock()
	defer mu.RUnlock()
	infos := make([]EncoderInfo, 0, len(registry))
	for f, e := range registry {
		info, _ := Lookup(f)
		infos = append(infos, EncoderInfo{
			Format:    f,
			MimeType:  info.MimeType,
			Available: e.Available(),
			Enabled:   !disabled[f],
		})
	}
	return infos
}
