// Package config loads the fileflow configuration from YAML with
// environment variable overrides. Defaults are defined here so every
// component can run without a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	TempFile TempFileConfig `yaml:"tempFile" json:"tempFile"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Router   RouterConfig   `yaml:"router" json:"router"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// TempFileConfig controls the temporary file manager.
type TempFileConfig struct {
	Directory         string        `yaml:"directory" json:"directory"`
	DefaultExpiration time.Duration `yaml:"defaultExpiration" json:"defaultExpiration"`
	MaxFileSize       int64         `yaml:"maxFileSize" json:"maxFileSize"`
	CleanupInterval   time.Duration `yaml:"cleanupInterval" json:"cleanupInterval"`
}

// PipelineConfig controls the stream processor chain.
type PipelineConfig struct {
	BufferSize        int           `yaml:"bufferSize" json:"bufferSize"`
	MaxProcessingTime time.Duration `yaml:"maxProcessingTime" json:"maxProcessingTime"`

	ChecksumAlgorithm string `yaml:"checksumAlgorithm" json:"checksumAlgorithm"` // "sha256" or "blake3"

	CompressionAlgorithm string `yaml:"compressionAlgorithm" json:"compressionAlgorithm"` // "zstd", "gzip" or "lz4"
	CompressionLevel     int    `yaml:"compressionLevel" json:"compressionLevel"`
	CompressionMinSize   int64  `yaml:"compressionMinSize" json:"compressionMinSize"`

	EncryptionAlgorithm string `yaml:"encryptionAlgorithm" json:"encryptionAlgorithm"` // "aes-gcm" or "chacha20poly1305"
	EncryptionKeyID     string `yaml:"encryptionKeyId" json:"encryptionKeyId"`
	EncryptionKey       string `yaml:"encryptionKey" json:"encryptionKey"` // hex, 32 bytes

	ThumbnailSize        int   `yaml:"thumbnailSize" json:"thumbnailSize"`
	ThumbnailMaxWidth    int   `yaml:"thumbnailMaxWidth" json:"thumbnailMaxWidth"`
	ThumbnailMaxHeight   int   `yaml:"thumbnailMaxHeight" json:"thumbnailMaxHeight"`
	ThumbnailMaxFileSize int64 `yaml:"thumbnailMaxFileSize" json:"thumbnailMaxFileSize"`

	ScanPatterns           []string `yaml:"scanPatterns" json:"scanPatterns"`
	RestrictedContentTypes []string `yaml:"restrictedContentTypes" json:"restrictedContentTypes"`
}

// RouterConfig controls the intelligent storage router. Rule weights and
// the fallback threshold are configuration inputs; the defaults preserve
// the historical behavior.
type RouterConfig struct {
	Weights              RuleWeights   `yaml:"weights" json:"weights"`
	FallbackThreshold    float64       `yaml:"fallbackThreshold" json:"fallbackThreshold"`
	EnableFallback       bool          `yaml:"enableFallback" json:"enableFallback"`
	AvailabilityCacheTTL time.Duration `yaml:"availabilityCacheTtl" json:"availabilityCacheTtl"`
}

// RuleWeights is the per-rule-type weight table used to aggregate
// routing decisions.
type RuleWeights struct {
	Size          int `yaml:"size" json:"size"`
	ContentType   int `yaml:"contentType" json:"contentType"`
	AccessPattern int `yaml:"accessPattern" json:"accessPattern"`
	Default       int `yaml:"default" json:"default"`
	Fallback      int `yaml:"fallback" json:"fallback"`
}

// StorageConfig lists the configured storage backends.
type StorageConfig struct {
	Backends []BackendConfig `yaml:"backends" json:"backends"`
}

// BackendConfig describes one storage backend entry.
type BackendConfig struct {
	Name    string `yaml:"name" json:"name"`
	Kind    string `yaml:"kind" json:"kind"` // "local", "s3", "oss", "memory"
	RootDir string `yaml:"rootDir" json:"rootDir"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// DefaultConfig holds the default configuration values.
var DefaultConfig = Config{
	TempFile: TempFileConfig{
		Directory:         "/var/lib/fileflow/tmp",
		DefaultExpiration: 24 * time.Hour,
		MaxFileSize:       1 << 30, // 1GB
		CleanupInterval:   10 * time.Minute,
	},
	Pipeline: PipelineConfig{
		BufferSize:           64 * 1024,
		MaxProcessingTime:    2 * time.Minute,
		ChecksumAlgorithm:    "sha256",
		CompressionAlgorithm: "zstd",
		CompressionLevel:     3,
		CompressionMinSize:   1024,
		EncryptionAlgorithm:  "aes-gcm",
		EncryptionKeyID:      "default",
		ThumbnailSize:        256,
		ThumbnailMaxWidth:    8192,
		ThumbnailMaxHeight:   8192,
		ThumbnailMaxFileSize: 50 << 20, // 50MB
		ScanPatterns: []string{
			"X5O!P%@AP[4\\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*",
			"<script>evil",
		},
		RestrictedContentTypes: []string{
			"application/x-msdownload",
			"application/x-sh",
			"application/x-executable",
		},
	},
	Router: RouterConfig{
		Weights: RuleWeights{
			Size:          80,
			ContentType:   70,
			AccessPattern: 65,
			Default:       50,
			Fallback:      40,
		},
		FallbackThreshold:    0.4,
		EnableFallback:       true,
		AvailabilityCacheTTL: 30 * time.Second,
	},
	Storage: StorageConfig{
		Backends: []BackendConfig{
			{Name: "LOCAL", Kind: "local", RootDir: "/var/lib/fileflow/storage", Enabled: true},
		},
	},
	Logging: LoggingConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stdout",
	},
	Metrics: MetricsConfig{
		Enabled:   true,
		Namespace: "fileflow",
	},
}

// Load reads the configuration file at path (if non-empty), overlays it
// on the defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for values that would break the
// components consuming it.
func (c *Config) Validate() error {
	if c.TempFile.Directory == "" {
		return fmt.Errorf("tempFile.directory must not be empty")
	}
	if c.TempFile.MaxFileSize <= 0 {
		return fmt.Errorf("tempFile.maxFileSize must be positive")
	}
	if c.TempFile.DefaultExpiration <= 0 {
		return fmt.Errorf("tempFile.defaultExpiration must be positive")
	}
	if c.Pipeline.MaxProcessingTime <= 0 {
		return fmt.Errorf("pipeline.maxProcessingTime must be positive")
	}
	if c.Router.FallbackThreshold < 0 || c.Router.FallbackThreshold > 1 {
		return fmt.Errorf("router.fallbackThreshold must be in [0, 1]")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FILEFLOW_TEMP_DIR"); v != "" {
		cfg.TempFile.Directory = v
	}
	if v := os.Getenv("FILEFLOW_MAX_FILE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TempFile.MaxFileSize = size
		}
	}
	if v := os.Getenv("FILEFLOW_EXPIRATION_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			cfg.TempFile.DefaultExpiration = time.Duration(hours) * time.Hour
		}
	}
	if v := os.Getenv("FILEFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FILEFLOW_ENCRYPTION_KEY"); v != "" {
		cfg.Pipeline.EncryptionKey = v
	}
}
