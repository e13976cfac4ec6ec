package config

import (
	"path/filepath"
	"time"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Stable  StableConfig  `yaml:"stable"`
	Upload  UploadConfig  `yaml:"upload"`
	Batch   BatchConfig   `yaml:"batch"`
	Breaker BreakerConfig `yaml:"breaker"`
	Api     ApiConfig     `yaml:"api"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StableConfig struct {
	BaseUrl        string `yaml:"base_url"`
	ApiKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TemplatesDir   string `yaml:"templates_dir"`
}

type UploadConfig struct {
	BaseUrl    string `yaml:"base_url"`
	CdnUrl     string `yaml:"cdn_url"`
	PublicKey  string `yaml:"public_key"`
	RecordPath string `yaml:"record_path"`
}

type BatchConfig struct {
	// DelaySeconds is slept after every processed response to stay under the
	// generation API's rate limit.
	DelaySeconds        float64 `yaml:"delay_seconds"`
	OutputDir           string  `yaml:"output_dir"`
	PendingFile         string  `yaml:"pending_file"`
	ResultsFile         string  `yaml:"results_file"`
	DownloadConcurrency int     `yaml:"download_concurrency"`
}

type BreakerConfig struct {
	MaxFailures    uint32 `yaml:"max_failures"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ApiConfig struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowed_origins"`
}

// Defaults fills zero values. Paths under batch are resolved against OutputDir
// when they are relative bare file names.
func (c Config) Defaults() Config {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Stable.BaseUrl == "" {
		c.Stable.BaseUrl = "https://stablediffusionapi.com/api"
	}
	if c.Stable.TimeoutSeconds <= 0 {
		c.Stable.TimeoutSeconds = 120
	}
	if c.Stable.TemplatesDir == "" {
		c.Stable.TemplatesDir = "config/templates"
	}
	if c.Upload.BaseUrl == "" {
		c.Upload.BaseUrl = "https://upload.uploadcare.com"
	}
	if c.Upload.CdnUrl == "" {
		c.Upload.CdnUrl = "https://ucarecdn.com"
	}
	if c.Upload.RecordPath == "" {
		c.Upload.RecordPath = "output/uploaded/uploaded.json"
	}
	if c.Batch.DelaySeconds < 0 {
		c.Batch.DelaySeconds = 0
	}
	if c.Batch.OutputDir == "" {
		c.Batch.OutputDir = "output/images"
	}
	if c.Batch.PendingFile == "" {
		c.Batch.PendingFile = "processing.json"
	}
	if c.Batch.ResultsFile == "" {
		c.Batch.ResultsFile = "master.json"
	}
	if c.Batch.DownloadConcurrency <= 0 {
		c.Batch.DownloadConcurrency = 1
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.TimeoutSeconds <= 0 {
		c.Breaker.TimeoutSeconds = 30
	}
	if c.Api.Port == "" {
		c.Api.Port = "8080"
	}
	if c.Api.AllowedOrigins == "" {
		c.Api.AllowedOrigins = "*"
	}
	return c
}

func (c StableConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BatchConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

func (c BreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BatchConfig) PendingPath() string { return c.underOutput(c.PendingFile) }

func (c BatchConfig) ResultsPath() string { return c.underOutput(c.ResultsFile) }

// underOutput places bare file names inside OutputDir; anything with a
// directory part is used as given.
func (c BatchConfig) underOutput(name string) string {
	if filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}
