package device

import (
	"context"
	"log"
	"math"
	"time"

	"pixelbatch/internal/convert"
)

// Budgets are soft resource limits for the size-aware conversion path.
type Budgets struct {
	MaxMemoryMB       float64
	MaxProcessingTime time.Duration
}

// DefaultBudgets matches the data-saver assumptions: small heap, short
// interactive window.
var DefaultBudgets = Budgets{
	MaxMemoryMB:       50,
	MaxProcessingTime: 10 * time.Second,
}

// OptimizedConvert runs a conversion tuned for constrained devices. On top
// of the preset clamping it shrinks dimensions when the input exceeds the
// memory budget and switches to fast resampling. Exceeding the processing
// time budget is logged, not failed; it is a soft SLA.
func OptimizedConvert(ctx context.Context, file convert.File, base convert.Options, info Info, budgets Budgets, onProgress convert.ProgressFunc) (*convert.Result, error) {
	opts := MobileOptimizedOptions(base, info)

	fileMB := float64(file.Size()) / (1024 * 1024)
	if budgets.MaxMemoryMB > 0 && fileMB > budgets.MaxMemoryMB {
		scale := math.Sqrt(budgets.MaxMemoryMB / fileMB)
		if opts.MaxWidth > 0 {
			opts.MaxWidth = int(float64(opts.MaxWidth) * scale)
		}
		if opts.MaxHeight > 0 {
			opts.MaxHeight = int(float64(opts.MaxHeight) * scale)
		}
		log.Printf("device: %s is %.1fMB, over %.0fMB budget, scaling bounds by %.2f",
			file.Name, fileMB, budgets.MaxMemoryMB, scale)
	}

	opts.FastResample = true

	res, err := convert.Convert(ctx, file, opts, onProgress)
	if err != nil {
		return nil, err
	}
	if budgets.MaxProcessingTime > 0 && res.Duration > budgets.MaxProcessingTime {
		log.Printf("device: %s took %s, over %s budget", file.Name, res.Duration, budgets.MaxProcessingTime)
	}
	return res, nil
}
