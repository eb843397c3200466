package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "8022" {
		t.Fatalf("default port = %s", cfg.ServerPort)
	}
	if cfg.MaxConcurrentJobs != 2 {
		t.Fatalf("default max concurrent jobs = %d", cfg.MaxConcurrentJobs)
	}
	if !cfg.CleanupIntermediates {
		t.Fatalf("intermediates should be cleaned up by default")
	}
	if cfg.Tools.OmegaFold == "" || cfg.Tools.Vina == "" {
		t.Fatalf("tool defaults missing: %+v", cfg.Tools)
	}
	if cfg.Tools.DockTimeout != 4*time.Hour {
		t.Fatalf("dock timeout = %s", cfg.Tools.DockTimeout)
	}
	if cfg.Storage.Endpoint != "" {
		t.Fatalf("object storage should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATA_ROOT", "/srv/jobs")
	t.Setenv("MAX_CONCURRENT_JOBS", "4")
	t.Setenv("S3_ENDPOINT", "http://localhost:8333")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Fatalf("port override ignored: %s", cfg.ServerPort)
	}
	if cfg.DataRoot != "/srv/jobs" {
		t.Fatalf("data root override ignored: %s", cfg.DataRoot)
	}
	if cfg.MaxConcurrentJobs != 4 {
		t.Fatalf("concurrency override ignored: %d", cfg.MaxConcurrentJobs)
	}
	if cfg.Storage.Endpoint != "http://localhost:8333" {
		t.Fatalf("storage endpoint override ignored: %s", cfg.Storage.Endpoint)
	}
}

func TestLoadConcurrencyFloor(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxConcurrentJobs != 1 {
		t.Fatalf("concurrency must floor at 1, got %d", cfg.MaxConcurrentJobs)
	}
}
