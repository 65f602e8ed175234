package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pixelbatch/internal/api"
	"pixelbatch/internal/batch"
	"pixelbatch/internal/config"
	"pixelbatch/internal/convert"
	"pixelbatch/internal/format"
	"pixelbatch/internal/history"
	"pixelbatch/internal/pool"
	"pixelbatch/internal/watcher"
)

func main() {
	log.Println("Starting pixelbatchd...")

	cfg := config.Load()
	log.Printf("Configuration loaded:")
	log.Printf("  Watch Dirs: %v", cfg.WatchDirs)
	log.Printf("  Output Format: %s", cfg.OutputFormat)
	log.Printf("  Quality: %d", cfg.Quality)
	log.Printf("  Max Workers: %d", cfg.MaxWorkers)
	log.Printf("  HTTP Port: %d", cfg.HTTPPort)
	log.Printf("  DB Path: %s", cfg.DBPath)

	format.RegisterBuiltinEncoders()
	for _, info := range format.ListInfo() {
		if !info.Available {
			log.Printf("  warning: %s encoder unavailable on this host", info.Format)
		}
	}

	target, err := format.Parse(cfg.OutputFormat)
	if err != nil {
		log.Fatalf("Invalid OUTPUT_FORMAT: %v", err)
	}

	store, err := history.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer store.Close()

	p := pool.New(pool.Config{
		MaxWorkers:  cfg.MaxWorkers,
		TaskTimeout: cfg.TaskTimeout(),
	})
	defer p.Terminate()

	manager := batch.NewManager(p, store)

	opts := convert.Options{
		Format:    target,
		Quality:   cfg.Quality,
		MaxWidth:  cfg.MaxWidth,
		MaxHeight: cfg.MaxHeight,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var w *watcher.Watcher
	if len(cfg.WatchDirs) > 0 {
		w, err = watcher.New(cfg.WatchDirs, time.Duration(cfg.StabilityDelay)*time.Second, func(f convert.File) {
			manager.AddFiles([]convert.File{f}, opts)
		})
		if err != nil {
			log.Fatalf("Failed to create watcher: %v", err)
		}
		defer w.Close()
		go func() {
			if err := w.Start(ctx); err != nil {
				log.Printf("watcher stopped: %v", err)
			}
		}()
		// Drain pending items picked up by the watcher.
		go runPending(ctx, manager, cfg.PollInterval())
	}

	server := api.NewServer(cfg, manager, p, store, w)
	go func() {
		if err := server.Router.Run(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	log.Printf("pixelbatchd is running on %s", cfg.HTTPAddr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()
	p.Terminate()
	log.Println("Shutdown complete")
}

// runPending starts a batch run whenever pending items exist and no run is
// active, so watcher pickups flow through without an operator nudge.
func runPending(ctx context.Context, manager *batch.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := manager.Stats()
			if stats.Pending == 0 || manager.Running() {
				continue
			}
			if err := manager.StartBatch(ctx, logProgress); err != nil {
				log.Printf("batch run: %v", err)
			}
		}
	}
}

func logProgress(item batch.Item, stats batch.Stats) {
	if item.Status == batch.StatusComplete || item.Status == batch.StatusError {
		log.Printf("[%s] %s (%d/%d done, ETA %s)",
			item.Status, item.FileName, stats.Complete+stats.Errored, stats.Total,
			stats.EstimatedTimeRemaining.Round(time.Second))
	}
}
