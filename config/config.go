// Package config loads service configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the document service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig bounds the in-memory session store.
type StoreConfig struct {
	MaxDocuments  int           `mapstructure:"max_documents"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// UploadConfig bounds what the loader accepts.
type UploadConfig struct {
	MaxFileSizeMB int      `mapstructure:"max_file_size_mb"`
	MaxPages      int      `mapstructure:"max_pages"`
	Extensions    []string `mapstructure:"extensions"`
}

// ChunkingConfig controls how raw text is split.
type ChunkingConfig struct {
	MaxChars int `mapstructure:"max_chars"`
	Overlap  int `mapstructure:"overlap"`
}

// RetrievalConfig controls question answering retrieval.
type RetrievalConfig struct {
	TopK     int  `mapstructure:"top_k"`
	UseIndex bool `mapstructure:"use_index"`
}

// SummaryConfig controls summarization.
type SummaryConfig struct {
	MaxSentences   int `mapstructure:"max_sentences"`
	MaxKeyPoints   int `mapstructure:"max_key_points"`
	MaxPromptChars int `mapstructure:"max_prompt_chars"`
}

// OCRConfig controls the scanned-page text recovery engine.
type OCRConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Languages []string `mapstructure:"languages"`
}

// LLMConfig configures the optional chat provider used for summaries.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai or none
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig controls the metrics endpoint.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

func (s StoreConfig) Validate() error {
	if s.MaxDocuments < 1 {
		return fmt.Errorf("store.max_documents must be at least 1, got %d", s.MaxDocuments)
	}
	return nil
}

func (u UploadConfig) Validate() error {
	if u.MaxFileSizeMB < 1 {
		return fmt.Errorf("upload.max_file_size_mb must be at least 1, got %d", u.MaxFileSizeMB)
	}
	if u.MaxPages < 1 {
		return fmt.Errorf("upload.max_pages must be at least 1, got %d", u.MaxPages)
	}
	return nil
}

func (c ChunkingConfig) Validate() error {
	if c.MaxChars < 1 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.MaxChars)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChars {
		return fmt.Errorf("chunking.overlap must be in [0, max_chars), got %d", c.Overlap)
	}
	return nil
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "", "none", "openai":
		return nil
	}
	return fmt.Errorf("llm.provider must be openai or none, got %q", l.Provider)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.max_documents", 5)
	v.SetDefault("store.ttl", 60*time.Minute)
	v.SetDefault("store.sweep_interval", time.Minute)
	v.SetDefault("upload.max_file_size_mb", 25)
	v.SetDefault("upload.max_pages", 50)
	v.SetDefault("chunking.max_chars", 1000)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.use_index", false)
	v.SetDefault("summary.max_sentences", 4)
	v.SetDefault("summary.max_key_points", 5)
	v.SetDefault("summary.max_prompt_chars", 15000)
	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_path", "/metrics")
}

// Load reads config from the given file, or from ./config.json and
// ./config/config.json when path is empty. A missing file is not an error;
// defaults and DOCSENSE_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DOCSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Upload.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
