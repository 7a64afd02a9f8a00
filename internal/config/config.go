package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// QueueConfig tunes the durable queue fabric shared by all four stages.
type QueueConfig struct {
	BatchSize            int `yaml:"batchSize"`
	MaxRetriesPerMessage int `yaml:"maxRetriesPerMessage"`
	PollIntervalMs       int `yaml:"pollIntervalMs"`
	VisibilityTimeoutSec int `yaml:"visibilityTimeoutSec"`
}

// WorkerPoolConfig controls per-stage consumer concurrency and receive
// batch size. Zero values fall back to defaults at startup.
type WorkerPoolConfig struct {
	Concurrency  int `yaml:"concurrency"`
	ReceiveBatch int `yaml:"receiveBatch"`
}

type WorkersConfig struct {
	Crawl    WorkerPoolConfig `yaml:"crawl"`
	OCR      WorkerPoolConfig `yaml:"ocr"`
	Analysis WorkerPoolConfig `yaml:"analysis"`
	Webhook  WorkerPoolConfig `yaml:"webhook"`
}

// OCRConfig holds the OCR provider settings. The provider is an HTTP
// service that extracts text from a gazette PDF by URL.
type OCRConfig struct {
	BaseURL            string `yaml:"baseURL"`
	APIKey             string `yaml:"apiKey"`
	Model              string `yaml:"model"`
	TimeoutSec         int    `yaml:"timeoutSec"`
	StorageRetries     int    `yaml:"storageRetries"`
	StorageBaseDelayMs int    `yaml:"storageBaseDelayMs"`
	CacheTTLSec        int    `yaml:"cacheTTLSec"`
}

// AnalyzerConfig is the per-analyzer switch shared by all analyzer kinds.
type AnalyzerConfig struct {
	Enabled    bool `yaml:"enabled"`
	Priority   int  `yaml:"priority"`
	TimeoutSec int  `yaml:"timeoutSec"`
}

// ConcursoAnalyzerConfig extends AnalyzerConfig with AI-assisted
// extraction options for public competition notices.
type ConcursoAnalyzerConfig struct {
	AnalyzerConfig  `yaml:",inline"`
	UseAIExtraction bool   `yaml:"useAIExtraction"`
	Model           string `yaml:"model"`
}

type AnalyzersConfig struct {
	Keyword     AnalyzerConfig         `yaml:"keyword"`
	Entity      AnalyzerConfig         `yaml:"entity"`
	Concurso    ConcursoAnalyzerConfig `yaml:"concurso"`
	AI          AnalyzerConfig         `yaml:"ai"`
	CacheTTLSec int                    `yaml:"cacheTTLSec"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type LLMConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
}

// SpidersConfig points at the YAML file declaring the registered
// spiders (one per city).
type SpidersConfig struct {
	File string `yaml:"file"`
}

// WebhookConfig controls subscriber notification delivery. Endpoint, if
// set, seeds a default subscription at startup.
type WebhookConfig struct {
	Endpoint    string `yaml:"endpoint"`
	AuthType    string `yaml:"authType"`
	AuthToken   string `yaml:"authToken"`
	UserAgent   string `yaml:"userAgent"`
	TimeoutSec  int    `yaml:"timeoutSec"`
	MaxAttempts int    `yaml:"maxAttempts"`
}

// StorageConfig points at the public object store where gazette PDFs
// are mirrored under content-addressed keys.
type StorageConfig struct {
	PublicURL string `yaml:"publicURL"`
}

// RetentionConfig controls TTL-like deletion of consumed queue messages
// and resolved error logs so the database does not grow without bound.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	QueueDoneDays          int  `yaml:"queueDoneDays"`
	ResolvedErrorDays      int  `yaml:"resolvedErrorDays"`
	TelemetryDays          int  `yaml:"telemetryDays"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Workers   WorkersConfig   `yaml:"workers"`
	OCR       OCRConfig       `yaml:"ocr"`
	Analyzers AnalyzersConfig `yaml:"analyzers"`
	LLM       LLMConfig       `yaml:"llm"`
	Spiders   SpidersConfig   `yaml:"spiders"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
}

func Load(path string) *Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}

	// Secrets are referenced as ${ENV_VAR} in the YAML file.
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Queue.BatchSize <= 0 {
		c.Queue.BatchSize = 100
	}
	if c.Queue.MaxRetriesPerMessage <= 0 {
		c.Queue.MaxRetriesPerMessage = 3
	}
	if c.Queue.PollIntervalMs <= 0 {
		c.Queue.PollIntervalMs = 2000
	}
	if c.Queue.VisibilityTimeoutSec <= 0 {
		c.Queue.VisibilityTimeoutSec = 300
	}
	if c.OCR.TimeoutSec <= 0 {
		c.OCR.TimeoutSec = 120
	}
	if c.OCR.StorageRetries <= 0 {
		c.OCR.StorageRetries = 3
	}
	if c.OCR.StorageBaseDelayMs <= 0 {
		c.OCR.StorageBaseDelayMs = 1000
	}
	if c.OCR.CacheTTLSec <= 0 {
		c.OCR.CacheTTLSec = 604800 // 7 days
	}
	if c.Analyzers.CacheTTLSec <= 0 {
		c.Analyzers.CacheTTLSec = 86400 // 24 hours
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = 3
	}
	if c.Webhook.TimeoutSec <= 0 {
		c.Webhook.TimeoutSec = 30
	}
	if c.Webhook.UserAgent == "" {
		c.Webhook.UserAgent = "gazeta-webhook/1.0"
	}
}
