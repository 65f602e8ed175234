package format

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// execEncoder produces webp/avif output through the reference command-line
// encoders (cwebp, avifenc). The raster is handed over as a temporary PNG,
// which both tools accept losslessly.
type execEncoder struct {
	format Format
	tool   string
}

func newExecEncoder(f Format) *execEncoder {
	tool := "cwebp"
	if f == AVIF {
		tool = "avifenc"
	}
	return &execEncoder{format: f, tool: tool}
}

func (e *execEncoder) Format() Format { return e.format }

func (e *execEncoder) Available() bool {
	_, err := exec.LookPath(e.tool)
	return err == nil
}

func (e *execEncoder) Encode(ctx context.Context, img image.Image, opts EncodeOptions) ([]byte, error) {
	if _, err := exec.LookPath(e.tool); err != nil {
		return nil, fmt.Errorf("required tool not found: %s", e.tool)
	}

	tmpDir := os.TempDir()
	stamp := time.Now().UnixNano()
	srcFile := filepath.Join(tmpDir, fmt.Sprintf("pixelbatch_%d.png", stamp))
	dstFile := filepath.Join(tmpDir, fmt.Sprintf("pixelbatch_%d.%s", stamp, e.format))
	defer os.Remove(srcFile)
	defer os.Remove(dstFile)

	f, err := os.Create(srcFile)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp png: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	switch e.format {
	case WebP:
		args := []string{"-o", dstFile}
		if opts.Quality != nil {
			args = append(args, "-q", fmt.Sprintf("%d", *opts.Quality))
		}
		args = append(args, srcFile)
		cmd = exec.CommandContext(ctx, e.tool, args...)
	case AVIF:
		args := []string{}
		if opts.Quality != nil {
			args = append(args, "-q", fmt.Sprintf("%d", *opts.Quality))
		}
		args = append(args, srcFile, dstFile)
		cmd = exec.CommandContext(ctx, e.tool, args...)
	default:
		return nil, fmt.Errorf("exec encoder does not handle format: %s", e.format)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w, output: %s", e.tool, err, string(output))
	}

	data, err := os.ReadFile(dstFile)
	if err != nil {
		return nil, fmt.Errorf("%s did not create output file: %w", e.tool, err)
	}
	return data, nil
}
