package progressive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pixelbatch/internal/convert"
	"pixelbatch/internal/device"
	"pixelbatch/internal/format"
)

func testFile(name string) convert.File {
	return convert.File{Name: name, Data: []byte{1, 2, 3, 4}, LastModified: time.Unix(1700000000, 0)}
}

// countingConvert fabricates a result and counts invocations per stage shape.
func countingConvert(calls *int64) ConvertFunc {
	return func(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error) {
		atomic.AddInt64(calls, 1)
		data := []byte(fmt.Sprintf("%s@q%d", file.Name, opts.Quality))
		return &convert.Result{Data: data, Size: int64(len(data)), Width: opts.MaxWidth, Height: opts.MaxHeight}, nil
	}
}

func TestLoadReportsStagesInOrder(t *testing.T) {
	var calls int64
	l := NewLoader(Config{Convert: countingConvert(&calls)})

	var seen []string
	results, err := l.Load(context.Background(), testFile("a.png"), format.WebP, func(sr StageResult) {
		seen = append(seen, sr.Stage.Name)
	}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{"thumbnail", "preview", "full"}
	if len(seen) != len(want) {
		t.Fatalf("stages = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("stages = %v, want %v", seen, want)
		}
	}
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("stage %s failed: %v", r.Stage.Name, r.Err)
		}
		if r.URL == "" {
			t.Errorf("stage %s has no URL", r.Stage.Name)
		}
	}
	if calls != 3 {
		t.Errorf("conversions = %d, want 3", calls)
	}
}

func TestLoadCachesRepeatCalls(t *testing.T) {
	var calls int64
	l := NewLoader(Config{Convert: countingConvert(&calls)})

	file := testFile("a.png")
	if _, err := l.Load(context.Background(), file, format.WebP, nil, nil); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if _, err := l.Load(context.Background(), file, format.WebP, nil, nil); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if calls != 3 {
		t.Errorf("conversions = %d, want 3 (second load fully cached)", calls)
	}
	if l.CachedStages() != 3 {
		t.Errorf("cached stages = %d, want 3", l.CachedStages())
	}
}

func TestConcurrentLoadsShareConversions(t *testing.T) {
	var calls int64
	slow := func(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return &convert.Result{Data: []byte("x"), Size: 1}, nil
	}
	l := NewLoader(Config{Convert: slow})
	file := testFile("a.png")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background(), file, format.WebP, nil, nil); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("conversions = %d, want 3 across 4 concurrent loads", got)
	}
}

func TestStageFailureDoesNotStopLaterStages(t *testing.T) {
	boom := errors.New("encoder fell over")
	fn := func(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error) {
		if opts.MaxWidth == 800 {
			return nil, boom
		}
		return &convert.Result{Data: []byte("x"), Size: 1}, nil
	}
	l := NewLoader(Config{Convert: fn})

	var reported []string
	results, err := l.Load(context.Background(), testFile("a.png"), format.WebP, func(sr StageResult) {
		reported = append(reported, sr.Stage.Name)
	}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want all 3 stages attempted", len(results))
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("preview err = %v", results[1].Err)
	}
	if results[2].Err != nil {
		t.Errorf("full stage err = %v, want success after preview failure", results[2].Err)
	}
	// Only successes reach the callback.
	if len(reported) != 2 || reported[0] != "thumbnail" || reported[1] != "full" {
		t.Errorf("reported = %v", reported)
	}
	// Failed stages are not cached, so a retry re-attempts them.
	if l.CachedStages() != 2 {
		t.Errorf("cached stages = %d, want 2", l.CachedStages())
	}
}

func TestLowEndDiscount(t *testing.T) {
	var mu sync.Mutex
	var qualities []int
	var widths []int
	fn := func(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error) {
		mu.Lock()
		qualities = append(qualities, opts.Quality)
		widths = append(widths, opts.MaxWidth)
		mu.Unlock()
		return &convert.Result{Data: []byte("x"), Size: 1}, nil
	}
	l := NewLoader(Config{Convert: fn})

	caps := &device.Info{IsLowEndDevice: true}
	if _, err := l.Load(context.Background(), testFile("a.png"), format.WebP, nil, caps); err != nil {
		t.Fatalf("Load: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// thumbnail 40 -> 32, preview 65 -> 52, full 85 -> 68
	wantQ := []int{32, 52, 68}
	// thumbnail 150 -> 112, preview 800 -> 600, full stays unbounded
	wantW := []int{112, 600, 0}
	for i := range wantQ {
		if qualities[i] != wantQ[i] {
			t.Errorf("stage %d quality = %d, want %d", i, qualities[i], wantQ[i])
		}
		if widths[i] != wantW[i] {
			t.Errorf("stage %d width = %d, want %d", i, widths[i], wantW[i])
		}
	}
}

func TestDiscountedStagesCacheSeparately(t *testing.T) {
	var calls int64
	l := NewLoader(Config{Convert: countingConvert(&calls)})
	file := testFile("a.png")

	if _, err := l.Load(context.Background(), file, format.WebP, nil, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	caps := &device.Info{ConnectionSpeed: device.SpeedSlow}
	if _, err := l.Load(context.Background(), file, format.WebP, nil, caps); err != nil {
		t.Fatalf("discounted Load: %v", err)
	}
	if calls != 6 {
		t.Errorf("conversions = %d, want 6 (discounted stages are distinct cache keys)", calls)
	}
}

// trackingRegistry records create/revoke pairs.
type trackingRegistry struct {
	mu      sync.Mutex
	created int
	revoked int
	live    map[string]bool
}

func newTrackingRegistry() *trackingRegistry {
	return &trackingRegistry{live: make(map[string]bool)}
}

func (r *trackingRegistry) Create(data []byte, mimeType string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	url := fmt.Sprintf("blob:test/%d", r.created)
	r.live[url] = true
	return url
}

func (r *trackingRegistry) Revoke(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[url] {
		delete(r.live, url)
		r.revoked++
	}
}

func (r *trackingRegistry) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func TestClearCacheRevokesURLs(t *testing.T) {
	var calls int64
	reg := newTrackingRegistry()
	l := NewLoader(Config{Convert: countingConvert(&calls), URLs: reg})

	fileA := testFile("a.png")
	fileB := testFile("b.png")
	if _, err := l.Load(context.Background(), fileA, format.WebP, nil, nil); err != nil {
		t.Fatalf("Load a: %v", err)
	}
	if _, err := l.Load(context.Background(), fileB, format.WebP, nil, nil); err != nil {
		t.Fatalf("Load b: %v", err)
	}
	if reg.liveCount() != 6 {
		t.Fatalf("live URLs = %d, want 6", reg.liveCount())
	}

	l.ClearCache(&fileA)
	if reg.liveCount() != 3 {
		t.Errorf("live URLs after per-file clear = %d, want 3", reg.liveCount())
	}
	if l.CachedStages() != 3 {
		t.Errorf("cached stages = %d, want 3", l.CachedStages())
	}

	l.ClearCache(nil)
	if reg.liveCount() != 0 {
		t.Errorf("live URLs after full clear = %d, want 0", reg.liveCount())
	}
	if l.CachedStages() != 0 {
		t.Errorf("cached stages = %d, want 0", l.CachedStages())
	}
}

func TestClearCacheDuringFlightRevokesOnCompletion(t *testing.T) {
	reg := newTrackingRegistry()
	gate := make(chan struct{})
	entered := make(chan struct{}, 8)
	fn := func(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error) {
		entered <- struct{}{}
		<-gate
		return &convert.Result{Data: []byte("x"), Size: 1}, nil
	}
	l := NewLoader(Config{Convert: fn, URLs: reg})

	file := testFile("a.png")
	type loadOut struct {
		results []StageResult
		err     error
	}
	done := make(chan loadOut, 1)
	go func() {
		results, err := l.Load(context.Background(), file, format.WebP, nil, nil)
		done <- loadOut{results, err}
	}()
	<-entered

	// Invalidate while the thumbnail stage is still converting. The later
	// stages run after the clear and cache normally.
	l.ClearCache(nil)
	close(gate)
	out := <-done
	if out.err != nil {
		t.Fatalf("Load: %v", out.err)
	}

	if out.results[0].URL != "" {
		t.Errorf("invalidated stage still carries URL %q", out.results[0].URL)
	}
	if got := reg.liveCount(); got != 2 {
		t.Errorf("live URLs = %d, want 2 (invalidated stage revoked)", got)
	}
	if l.CachedStages() != 2 {
		t.Errorf("cached stages = %d, want 2", l.CachedStages())
	}
}

func TestMemoryURLRegistry(t *testing.T) {
	reg := NewMemoryURLRegistry()
	url := reg.Create([]byte("blobdata"), "image/webp")
	if url == "" {
		t.Fatal("empty url")
	}
	data, ok := reg.Get(url)
	if !ok || string(data) != "blobdata" {
		t.Errorf("Get = %q, %v", data, ok)
	}
	reg.Revoke(url)
	if _, ok := reg.Get(url); ok {
		t.Error("revoked url still resolvable")
	}
	if reg.Len() != 0 {
		t.Errorf("len = %d", reg.Len())
	}
}
