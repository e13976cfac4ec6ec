package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TypeTerrors/gonfig"
)

// unsetenv clears key for the test and restores it afterwards.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatal(err)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "STABLE_BASE_URL", "STABLE_TIMEOUT_SECONDS", "STABLE_TEMPLATES_DIR",
		"UPLOAD_BASE_URL", "UPLOAD_CDN_URL", "UCARE_API_KEY_PUBLIC", "UPLOAD_RECORD_PATH",
		"BATCH_DELAY_SECONDS", "OUT_PATH", "BATCH_PENDING_FILE", "BATCH_RESULTS_FILE",
		"BATCH_DOWNLOAD_CONCURRENCY", "BREAKER_MAX_FAILURES", "BREAKER_TIMEOUT_SECONDS",
		"PORT", "ALLOWED_ORIGINS",
	} {
		unsetenv(t, key)
	}

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("STABLE_API_KEY", "secret")

		c, err := gonfig.Load[Config](gonfig.WithConfigFile("config.yaml"), gonfig.WithStrict())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if c.Stable.ApiKey != "secret" || c.Log.Level != "info" {
			t.Fatalf("unexpected config: %+v", c)
		}
		if c.Upload.PublicKey != "" {
			t.Fatalf("upload key must default to empty, got %q", c.Upload.PublicKey)
		}
		if c.Batch.OutputDir != "output/images" || c.Batch.DownloadConcurrency != 2 || c.Batch.DelaySeconds != 1 {
			t.Fatalf("unexpected batch config: %+v", c.Batch)
		}
		if c.Breaker.MaxFailures != 5 || c.Api.Port != "8080" || c.Api.AllowedOrigins != "*" {
			t.Fatalf("unexpected breaker/api config: %+v %+v", c.Breaker, c.Api)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("STABLE_API_KEY", "secret")
		t.Setenv("UCARE_API_KEY_PUBLIC", "pub")
		t.Setenv("OUT_PATH", "/data/out")

		c, err := gonfig.Load[Config](gonfig.WithConfigFile("config.yaml"), gonfig.WithStrict())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if c.Upload.PublicKey != "pub" || c.Batch.OutputDir != "/data/out" {
			t.Fatalf("env not applied: %+v %+v", c.Upload, c.Batch)
		}
	})

	t.Run("api key required", func(t *testing.T) {
		unsetenv(t, "STABLE_API_KEY")
		if _, err := gonfig.Load[Config](gonfig.WithConfigFile("config.yaml"), gonfig.WithStrict()); err == nil {
			t.Fatalf("strict load must fail without STABLE_API_KEY")
		}
	})
}

func TestDefaults(t *testing.T) {
	c := Config{}.Defaults()
	if c.Log.Level != "info" || c.Batch.DownloadConcurrency != 1 || c.Breaker.MaxFailures != 5 {
		t.Fatalf("unexpected defaults: %+v", c)
	}

	kept := Config{Batch: BatchConfig{OutputDir: "out", DelaySeconds: 1.5}}.Defaults()
	if kept.Batch.OutputDir != "out" {
		t.Fatalf("explicit values must be kept: %+v", kept.Batch)
	}
	if kept.Batch.Delay() != 1500*time.Millisecond {
		t.Fatalf("unexpected delay: %v", kept.Batch.Delay())
	}
}

func TestBatchPaths(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"bare name", "processing.json", filepath.Join("out", "processing.json")},
		{"relative dir", filepath.Join("state", "p.json"), filepath.Join("state", "p.json")},
		{"absolute", "/var/lib/p.json", "/var/lib/p.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := BatchConfig{OutputDir: "out", PendingFile: tt.file, ResultsFile: tt.file}
			if got := c.PendingPath(); got != tt.want {
				t.Fatalf("PendingPath() = %q, want %q", got, tt.want)
			}
			if got := c.ResultsPath(); got != tt.want {
				t.Fatalf("ResultsPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
