package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	WatchDirs       []string
	OutputFormat    string
	Quality         int
	MaxWidth        int
	MaxHeight       int
	MaxWorkers      int
	TaskTimeoutSec  int
	HTTPPort        int
	DBPath          string
	StabilityDelay  int
	PollIntervalSec int
	MaxMemoryMB     int
	MaxProcessingMS int
}

func Load() *Config {
	cfg := &Config{}
	cfg.WatchDirs = splitAndTrim(os.Getenv("WATCH_DIRS"))
	cfg.OutputFormat = getEnv("OUTPUT_FORMAT", "webp")
	cfg.Quality = getEnvInt("CONVERT_QUALITY", 85)
	cfg.MaxWidth = getEnvInt("MAX_WIDTH", 0)
	cfg.MaxHeight = getEnvInt("MAX_HEIGHT", 0)
	cfg.MaxWorkers = getEnvInt("MAX_WORKERS", 0) // 0 = min(NumCPU, 8)
	cfg.TaskTimeoutSec = getEnvInt("TASK_TIMEOUT", 60)
	cfg.HTTPPort = getEnvInt("HTTP_PORT", 8000)
	cfg.DBPath = getEnv("DB_PATH", ":memory:")
	cfg.StabilityDelay = getEnvInt("STABILITY_DELAY", 1)
	cfg.PollIntervalSec = getEnvInt("POLL_INTERVAL", 2)
	cfg.MaxMemoryMB = getEnvInt("MAX_MEMORY_MB", 50)
	cfg.MaxProcessingMS = getEnvInt("MAX_PROCESSING_MS", 10000)
	return cfg
}

func (c *Config) HTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }

func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSec) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

func (c *Config) MaxProcessingTime() time.Duration {
	return time.Duration(c.MaxProcessingMS) * time.Millisecond
}

func splitAndTrim(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
