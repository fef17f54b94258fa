package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration, fixed at boot. The engine
// execution profile in particular is immutable for the process lifetime so
// conversion output stays reproducible.
type Config struct {
	Addr           string
	DataDir        string
	DBPath         string
	AllowedOrigins []string

	EngineURL        string
	EngineThreads    int
	EngineImageScale float64
	EngineTimeout    time.Duration

	Workers       int64
	RetentionDays int

	EngineManaged   bool
	EngineImage     string
	EngineContainer string
}

func Load() (Config, error) {
	cfg := Config{}

	cfg.Addr = envOrDefault("PDF2MD_ADDR", ":8080")
	cfg.DataDir = envOrDefault("PDF2MD_DATA_DIR", "data")
	cfg.DBPath = envOrDefault("PDF2MD_DB_PATH", "cache.db")
	cfg.AllowedOrigins = splitNonEmpty(envOrDefault("PDF2MD_ALLOWED_ORIGINS", "*"))

	cfg.EngineURL = envOrDefault("PDF2MD_ENGINE_URL", "http://127.0.0.1:5001")
	cfg.EngineManaged = envOrDefault("PDF2MD_ENGINE_MANAGED", "false") == "true"
	cfg.EngineImage = envOrDefault("PDF2MD_ENGINE_IMAGE", "ghcr.io/docling-project/docling-serve:latest")
	cfg.EngineContainer = envOrDefault("PDF2MD_ENGINE_CONTAINER", "pdf2md-engine")

	threads, err := parseIntEnv("PDF2MD_ENGINE_THREADS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse PDF2MD_ENGINE_THREADS: %w", err)
	}
	cfg.EngineThreads = int(threads)

	scale, err := parseFloatEnv("PDF2MD_IMAGE_SCALE", 2.0)
	if err != nil {
		return Config{}, fmt.Errorf("parse PDF2MD_IMAGE_SCALE: %w", err)
	}
	cfg.EngineImageScale = scale

	timeoutSec, err := parseIntEnv("PDF2MD_ENGINE_TIMEOUT_SEC", 600)
	if err != nil {
		return Config{}, fmt.Errorf("parse PDF2MD_ENGINE_TIMEOUT_SEC: %w", err)
	}
	cfg.EngineTimeout = time.Duration(timeoutSec) * time.Second

	workers, err := parseIntEnv("PDF2MD_WORKERS", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse PDF2MD_WORKERS: %w", err)
	}
	cfg.Workers = workers

	retention, err := parseIntEnv("PDF2MD_RETENTION_DAYS", 7)
	if err != nil {
		return Config{}, fmt.Errorf("parse PDF2MD_RETENTION_DAYS: %w", err)
	}
	cfg.RetentionDays = int(retention)

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseFloatEnv(key string, fallback float64) (float64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func splitNonEmpty(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
