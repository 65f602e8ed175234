package convert

import "pixelbatch/internal/format"

// Empirical per-format compression factors, relative to 3 bytes per pixel
// for the lossy formats and absolute bytes per pixel for the rest. Tuned
// against observed output sizes; UI previews depend on these values.
var compressionFactor = map[format.Format]float64{
	format.JPEG: 0.15,
	format.WebP: 0.12,
	format.AVIF: 0.08,
}

const (
	pngBytesPerPixel = 2.0
	gifBytesPerPixel = 0.3
	rawBytesPerPixel = 3.0
)

// EstimateSize predicts the encoded output size in bytes without running
// the encoder. Close enough for previews, not exact.
func EstimateSize(width, height int, opts Options) int64 {
	pixels := float64(width * height)
	switch opts.Format {
	case format.PNG:
		return int64(pixels * pngBytesPerPixel)
	case format.GIF:
		return int64(pixels * gifBytesPerPixel)
	}
	factor, ok := compressionFactor[opts.Format]
	if !ok {
		factor = compressionFactor[format.JPEG]
	}
	q := float64(clampQuality(opts.Quality)) / 100
	return int64(pixels * rawBytesPerPixel * factor * q)
}

// EstimateOutput predicts the output size for a conversion of src after
// applying the dimension bounds in opts.
func EstimateOutput(srcWidth, srcHeight int, opts Options) int64 {
	w, h := targetDimensions(srcWidth, srcHeight, opts.MaxWidth, opts.MaxHeight)
	return EstimateSize(w, h, opts)
}
