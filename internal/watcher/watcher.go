package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pixelbatch/internal/convert"
	"pixelbatch/internal/format"
)

// Sink receives files the watcher picked up.
type Sink func(file convert.File)

// Watcher recursively watches directories for new or modified images and
// hands them to a sink after a short stability delay, so half-written
// files are not converted.
type Watcher struct {
	roots          []string
	stabilityDelay time.Duration
	sink           Sink
	w              *fsnotify.Watcher

	mu     sync.Mutex
	paused bool
	seen   map[string]time.Time
}

// New creates a recursive watcher over roots.
func New(roots []string, stabilityDelay time.Duration, sink Sink) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		roots:          roots,
		stabilityDelay: stabilityDelay,
		sink:           sink,
		w:              fw,
		seen:           make(map[string]time.Time),
	}, nil
}

// Start registers every directory under the roots and blocks handling
// events until ctx is cancelled.
func (wr *Watcher) Start(ctx context.Context) error {
	if err := wr.registerAll(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-wr.w.Events:
			wr.handleEvent(ev)
		case err := <-wr.w.Errors:
			log.Printf("watcher: %v", err)
		}
	}
}

func (wr *Watcher) Close() error { return wr.w.Close() }

func (wr *Watcher) Pause()  { wr.mu.Lock(); wr.paused = true; wr.mu.Unlock() }
func (wr *Watcher) Resume() { wr.mu.Lock(); wr.paused = false; wr.mu.Unlock() }
func (wr *Watcher) Paused() bool {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return wr.paused
}

func (wr *Watcher) registerAll() error {
	for _, root := range wr.roots {
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				_ = wr.w.Add(path)
			}
			return nil
		})
	}
	return nil
}

func (wr *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		fi, err := os.Stat(ev.Name)
		if err == nil && fi.IsDir() {
			_ = filepath.WalkDir(ev.Name, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.IsDir() {
					_ = wr.w.Add(path)
				}
				return nil
			})
			return
		}
	}
	if wr.Paused() {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !format.IsDecodable(ev.Name) {
		return
	}
	go func(path string) {
		time.Sleep(wr.stabilityDelay)
		if err := wr.pickup(path); err != nil {
			log.Printf("watcher: pickup %s: %v", path, err)
		}
	}(ev.Name)
}

// pickup reads a settled file and forwards it once per modification.
func (wr *Watcher) pickup(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}

	wr.mu.Lock()
	if last, ok := wr.seen[path]; ok && last.Equal(fi.ModTime()) {
		wr.mu.Unlock()
		return nil
	}
	wr.seen[path] = fi.ModTime()
	wr.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	wr.sink(convert.File{Name: filepath.Base(path), Data: data, LastModified: fi.ModTime()})
	return nil
}

// ScanAll walks the roots and forwards every decodable file, skipping
// nothing. Used by the scan-now endpoint and at daemon startup.
func (wr *Watcher) ScanAll(ctx context.Context) int {
	count := 0
	for _, root := range wr.roots {
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if !format.IsDecodable(path) {
				return nil
			}
			if err := wr.pickup(path); err != nil {
				log.Printf("watcher: scan %s: %v", path, err)
				return nil
			}
			count++
			return nil
		})
	}
	return count
}
