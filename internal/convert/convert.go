package convert

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp decoder

	"pixelbatch/internal/format"
)

// File is an in-memory source image. LastModified participates in cache
// identity alongside name and size.
type File struct {
	Name         string
	Data         []byte
	LastModified time.Time
}

// Size returns the byte length of the source data.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Fingerprint identifies a file for caching: name + size + mtime.
func (f File) Fingerprint() string {
	return fmt.Sprintf("%s-%d-%d", f.Name, f.Size(), f.LastModified.UnixMilli())
}

// Options configures one conversion. Value-typed on purpose: every batch
// item gets its own copy so later mutation cannot couple items.
type Options struct {
	Format    format.Format
	Quality   int // 1-100
	MaxWidth  int // 0 = unbounded
	MaxHeight int // 0 = unbounded

	// FastResample trades smoothing quality for speed. Set by the
	// device-optimized path on constrained hardware.
	FastResample bool
}

// Result is the immutable outcome of one successful conversion.
type Result struct {
	Data            []byte
	Size            int64
	Width           int
	Height          int
	Duration        time.Duration
	MetadataSummary string
}

// ProgressFunc receives coarse progress while a conversion runs.
// Percent is 0-100, stage is a free-text phase label.
type ProgressFunc func(percent int, stage string)

// Convert decodes file, scales it to fit the configured bounds and
// re-encodes it to the target format. onProgress may be nil.
func Convert(ctx context.Context, file File, opts Options, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	report := func(pct int, stage string) {
		if onProgress != nil {
			onProgress(pct, stage)
		}
	}

	info, ok := format.Lookup(opts.Format)
	if !ok {
		return nil, &ConversionError{FileName: file.Name, Format: opts.Format, Op: OpEncode,
			Err: fmt.Errorf("unknown target format")}
	}

	report(10, "decoding")
	meta := readSourceMeta(file.Data)
	img, err := imaging.Decode(bytes.NewReader(file.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ConversionError{FileName: file.Name, Format: opts.Format, Op: OpDecode, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	srcBounds := img.Bounds()
	width, height := targetDimensions(srcBounds.Dx(), srcBounds.Dy(), opts.MaxWidth, opts.MaxHeight)

	report(45, "resizing")
	if width != srcBounds.Dx() || height != srcBounds.Dy() {
		filter := imaging.Lanczos
		if opts.FastResample {
			filter = imaging.Box
		}
		img = imaging.Resize(img, width, height, filter)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(70, "encoding")
	enc, ok := format.GetEncoder(opts.Format)
	if !ok {
		return nil, &ConversionError{FileName: file.Name, Format: opts.Format, Op: OpEncode,
			Err: fmt.Errorf("no encoder registered")}
	}
	encOpts := format.EncodeOptions{}
	if info.SupportsQuality {
		q := clampQuality(opts.Quality)
		encOpts.Quality = &q
	}
	data, err := enc.Encode(ctx, img, encOpts)
	if err != nil {
		return nil, &ConversionError{FileName: file.Name, Format: opts.Format, Op: OpEncode, Err: err}
	}

	report(100, "done")
	return &Result{
		Data:            data,
		Size:            int64(len(data)),
		Width:           width,
		Height:          height,
		Duration:        time.Since(start),
		MetadataSummary: meta,
	}, nil
}

// targetDimensions scales (w, h) down to fit the supplied bounds while
// preserving aspect ratio. Width is capped first, then the already-scaled
// height is checked against maxH. The order matters for extreme aspect
// ratios and is relied on by callers.
func targetDimensions(w, h, maxW, maxH int) (int, int) {
	if maxW <= 0 && maxH <= 0 {
		return w, h
	}
	outW, outH := w, h
	if maxW > 0 && outW > maxW {
		outH = roundRatio(outH*maxW, outW)
		outW = maxW
	}
	if maxH > 0 && outH > maxH {
		outW = roundRatio(outW*maxH, outH)
		outH = maxH
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}

func roundRatio(num, den int) int {
	if den == 0 {
		return 0
	}
	return (num + den/2) / den
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
