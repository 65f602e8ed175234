package progressive

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pixelbatch/internal/convert"
	"pixelbatch/internal/device"
	"pixelbatch/internal/format"
)

// Stage is one tier of a progressive load.
type Stage struct {
	Name        string
	Quality     int
	MaxWidth    int
	MaxHeight   int
	Description string
}

// DefaultStages is the thumbnail -> preview -> full sequence. Zero bounds
// on the full stage mean source resolution.
var DefaultStages = []Stage{
	{Name: "thumbnail", Quality: 40, MaxWidth: 150, MaxHeight: 150, Description: "instant placeholder"},
	{Name: "preview", Quality: 65, MaxWidth: 800, MaxHeight: 800, Description: "medium preview"},
	{Name: "full", Quality: 85, Description: "full resolution"},
}

// Discount applied to every stage on low-end devices or slow connections.
const (
	lowEndQualityScale   = 0.8
	lowEndDimensionScale = 0.75
)

// StageResult wraps one stage's conversion outcome plus its revocable URL.
// Err is set instead of Result when the stage failed; a failed stage does
// not stop later stages.
type StageResult struct {
	Stage  Stage
	Result *convert.Result
	URL    string
	Err    error
}

// StageFunc observes stage completions in declared order.
type StageFunc func(StageResult)

// ConvertFunc is the conversion primitive the loader drives. pool.Convert
// satisfies it; convert.Convert is the in-process default.
type ConvertFunc func(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error)

// Config configures a Loader.
type Config struct {
	Stages           []Stage
	PreloadNextStage bool
	Convert          ConvertFunc
	URLs             URLRegistry
}

// Loader runs staged conversions of single files with per-stage caching.
// Stage results become visible strictly in declared order even when
// preloading overlaps the underlying work.
type Loader struct {
	stages    []Stage
	preload   bool
	convertFn ConvertFunc
	urls      URLRegistry

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	done        chan struct{}
	result      *StageResult
	invalidated bool
	fingerprint string
}

// NewLoader creates a loader.
func NewLoader(cfg Config) *Loader {
	if len(cfg.Stages) == 0 {
		cfg.Stages = DefaultStages
	}
	if cfg.Convert == nil {
		cfg.Convert = convert.Convert
	}
	if cfg.URLs == nil {
		cfg.URLs = NewMemoryURLRegistry()
	}
	return &Loader{
		stages:    cfg.Stages,
		preload:   cfg.PreloadNextStage,
		convertFn: cfg.Convert,
		urls:      cfg.URLs,
		cache:     make(map[string]*cacheEntry),
	}
}

// Load converts file through every stage in order, surfacing each result
// through onStage as soon as it is ready. caps may be nil; a low-end or
// slow-connection profile shrinks every stage before converting.
func (l *Loader) Load(ctx context.Context, file convert.File, target format.Format, onStage StageFunc, caps *device.Info) ([]StageResult, error) {
	stages := l.stagesFor(caps)

	results := make([]StageResult, 0, len(stages))
	for i, stage := range stages {
		entry := l.getOrStart(ctx, file, target, stage)
		if l.preload && i+1 < len(stages) {
			// Kick the next stage off while this one is being reported.
			l.getOrStart(ctx, file, target, stages[i+1])
		}

		select {
		case <-entry.done:
		case <-ctx.Done():
			return results, ctx.Err()
		}

		res := *entry.result
		results = append(results, res)
		if onStage != nil && res.Err == nil {
			onStage(res)
		}
	}
	return results, nil
}

// stagesFor applies the low-end discount to the configured stage list.
func (l *Loader) stagesFor(caps *device.Info) []Stage {
	if caps == nil || (!caps.IsLowEndDevice && caps.ConnectionSpeed != device.SpeedSlow) {
		return l.stages
	}
	out := make([]Stage, len(l.stages))
	for i, s := range l.stages {
		s.Quality = int(float64(s.Quality) * lowEndQualityScale)
		s.MaxWidth = int(float64(s.MaxWidth) * lowEndDimensionScale)
		s.MaxHeight = int(float64(s.MaxHeight) * lowEndDimensionScale)
		out[i] = s
	}
	return out
}

// getOrStart returns the cached or in-flight entry for file+stage,
// starting the conversion when neither exists. Concurrent requests for the
// same stage share one conversion.
func (l *Loader) getOrStart(ctx context.Context, file convert.File, target format.Format, stage Stage) *cacheEntry {
	key := cacheKey(file, target, stage)

	l.mu.Lock()
	if entry, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return entry
	}
	entry := &cacheEntry{done: make(chan struct{}), fingerprint: file.Fingerprint()}
	l.cache[key] = entry
	l.mu.Unlock()

	go l.run(ctx, file, target, stage, key, entry)
	return entry
}

func (l *Loader) run(ctx context.Context, file convert.File, target format.Format, stage Stage, key string, entry *cacheEntry) {
	opts := convert.Options{
		Format:    target,
		Quality:   stage.Quality,
		MaxWidth:  stage.MaxWidth,
		MaxHeight: stage.MaxHeight,
	}
	res, err := l.convertFn(ctx, file, opts, nil)

	sr := StageResult{Stage: stage, Err: err}
	if err == nil {
		mime := ""
		if info, ok := format.Lookup(target); ok {
			mime = info.MimeType
		}
		sr.Result = res
		sr.URL = l.urls.Create(res.Data, mime)
	}

	l.mu.Lock()
	dropped := entry.invalidated || err != nil
	if dropped {
		delete(l.cache, key)
	}
	revokeURL := ""
	if entry.invalidated && sr.URL != "" {
		// The entry was cleared mid-flight; its URL must not leak.
		revokeURL = sr.URL
		sr.URL = ""
	}
	entry.result = &sr
	close(entry.done)
	l.mu.Unlock()

	if revokeURL != "" {
		l.urls.Revoke(revokeURL)
	}
}

// ClearCache drops cached stages and revokes their URLs. With a file it
// clears only that file's stages; with nil it clears everything.
func (l *Loader) ClearCache(file *convert.File) {
	var fingerprint string
	if file != nil {
		fingerprint = file.Fingerprint()
	}

	l.mu.Lock()
	var urls []string
	for key, entry := range l.cache {
		if file != nil && entry.fingerprint != fingerprint {
			continue
		}
		select {
		case <-entry.done:
			if entry.result != nil && entry.result.URL != "" {
				urls = append(urls, entry.result.URL)
			}
		default:
			// Still converting; mark it so run() revokes on completion.
			entry.invalidated = true
		}
		delete(l.cache, key)
	}
	l.mu.Unlock()

	for _, url := range urls {
		l.urls.Revoke(url)
	}
}

// CachedStages reports how many stage results are currently cached.
func (l *Loader) CachedStages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

func cacheKey(file convert.File, target format.Format, stage Stage) string {
	return strings.Join([]string{file.Fingerprint(), string(target), stage.Name,
		fmt.Sprintf("%d-%d-%d", stage.Quality, stage.MaxWidth, stage.MaxHeight)}, "|")
}
