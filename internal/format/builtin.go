package format

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
)

// RegisterBuiltinEncoders registers every encoder this build knows about.
// Pure-Go encoders are always usable; the webp/avif encoders shell out to
// external tools and report availability through Available().
func RegisterBuiltinEncoders() {
	Register(jpegEncoder{})
	Register(pngEncoder{})
	Register(gifEncoder{})
	Register(newExecEncoder(WebP))
	Register(newExecEncoder(AVIF))
}

type jpegEncoder struct{}

func (jpegEncoder) Format() Format  { return JPEG }
func (jpegEncoder) Available() bool { return true }

func (jpegEncoder) Encode(_ context.Context, img image.Image, opts EncodeOptions) ([]byte, error) {
	q := jpeg.DefaultQuality
	if opts.Quality != nil {
		q = *opts.Quality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type pngEncoder struct{}

func (pngEncoder) Format() Format  { return PNG }
func (pngEncoder) Available() bool { return true }

func (pngEncoder) Encode(_ context.Context, img image.Image, _ EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type gifEncoder struct{}

func (gifEncoder) Format() Format  { return GIF }
func (gifEncoder) Available() bool { return true }

func (gifEncoder) Encode(_ context.Context, img image.Image, _ EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
