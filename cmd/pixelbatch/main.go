package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"pixelbatch/internal/batch"
	"pixelbatch/internal/convert"
	"pixelbatch/internal/device"
	"pixelbatch/internal/format"
	"pixelbatch/internal/pool"
)

func main() {
	var (
		inDir      = flag.String("in", ".", "directory of source images")
		outDir     = flag.String("out", "converted", "output directory")
		formatName = flag.String("format", "webp", "target format (jpeg, png, webp, gif, avif)")
		quality    = flag.Int("quality", 85, "quality 1-100 for lossy formats")
		maxWidth   = flag.Int("max-width", 0, "maximum output width, 0 = source")
		maxHeight  = flag.Int("max-height", 0, "maximum output height, 0 = source")
		workers    = flag.Int("workers", 0, "worker count, 0 = min(cpus, 8)")
		zipPath    = flag.String("zip", "", "also write results as a zip archive")
		mobile     = flag.Bool("mobile", false, "apply the mobile device presets")
		verbose    = flag.Bool("verbose", false, "log every item transition")
	)
	flag.Parse()

	target, err := format.Parse(*formatName)
	if err != nil {
		log.Fatalf("invalid -format: %v", err)
	}
	format.RegisterBuiltinEncoders()
	if enc, ok := format.GetEncoder(target); !ok || !enc.Available() {
		log.Fatalf("no usable encoder for %s on this host", target)
	}

	files, err := discoverFiles(*inDir)
	if err != nil {
		log.Fatalf("discover files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no convertible images under %s", *inDir)
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size()
	}
	fmt.Printf("Found %d images to convert (%.2f MB total)\n",
		len(files), float64(totalSize)/(1024*1024))

	opts := convert.Options{
		Format:    target,
		Quality:   *quality,
		MaxWidth:  *maxWidth,
		MaxHeight: *maxHeight,
	}
	if *mobile {
		info := device.Info{IsMobile: true, ConnectionSpeed: device.SpeedUnknown}
		opts = device.MobileOptimizedOptions(opts, info)
	}

	p := pool.New(pool.Config{MaxWorkers: *workers})
	defer p.Terminate()

	manager := batch.NewManager(p, nil)
	manager.AddFiles(files, opts)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Converting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	onProgress := func(item batch.Item, stats batch.Stats) {
		switch item.Status {
		case batch.StatusComplete, batch.StatusError:
			bar.Add(1)
		}
		if *verbose && item.Status == batch.StatusError {
			fmt.Printf("\nFailed to convert %s: %s\n", item.FileName, item.Error)
		}
	}

	start := time.Now()
	if err := manager.StartBatch(context.Background(), onProgress); err != nil {
		log.Fatalf("batch run: %v", err)
	}

	if err := writeOutputs(manager, *outDir); err != nil {
		log.Fatalf("write outputs: %v", err)
	}

	if *zipPath != "" {
		data, err := manager.Archive()
		if err != nil {
			log.Printf("skipping zip: %v", err)
		} else if err := os.WriteFile(*zipPath, data, 0644); err != nil {
			log.Fatalf("write zip: %v", err)
		}
	}

	stats := manager.Stats()
	fmt.Printf("\nDone: %d converted, %d failed in %s (%.2f KB/s)\n",
		stats.Complete, stats.Errored, time.Since(start).Round(time.Millisecond),
		stats.AverageSpeed/1024)

	if stats.Errored > 0 {
		for _, item := range manager.Items() {
			if item.Status == batch.StatusError {
				fmt.Printf("  - %s: %s\n", item.FileName, item.Error)
			}
		}
		os.Exit(1)
	}
}

// discoverFiles loads every decodable image under dir into memory.
func discoverFiles(dir string) ([]convert.File, error) {
	var files []convert.File
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if !format.IsDecodable(path) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, convert.File{
			Name:         filepath.Base(path),
			Data:         data,
			LastModified: fi.ModTime(),
		})
		return nil
	})
	return files, err
}

// writeOutputs saves every completed item next to its archive name.
func writeOutputs(manager *batch.Manager, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	for _, item := range manager.Items() {
		if item.Status != batch.StatusComplete || item.Result == nil {
			continue
		}
		info, _ := format.Lookup(item.Options.Format)
		base := strings.TrimSuffix(item.FileName, filepath.Ext(item.FileName))
		dst := filepath.Join(outDir, base+"."+info.Extension)
		if err := os.WriteFile(dst, item.Result.Data, 0644); err != nil {
			return err
		}
	}
	return nil
}
