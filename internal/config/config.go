package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/qa"
	"github.com/domus-magna/chinaxiv-english-sub001/internal/queue"
	"github.com/domus-magna/chinaxiv-english-sub001/pkg/log"
)

// Config holds all application configuration, read from environment
// variables with sensible defaults. A .env file next to the binary is loaded
// first when present.
//
// Environment Variables:
// Queue:
// - QUEUE_BACKEND: "file" or "sqlite" (default: file)
// - QUEUE_PATH: path of the queue document or database (default: data/queue.json)
// - QUEUE_COMMIT_MAX_ATTEMPTS: optimistic commit retries (default: 5)
// - QUEUE_COMMIT_BACKOFF_MS: base backoff between retries (default: 200)
// - APPROVED_DIR: artifact directory for QA passes (default: data/approved)
// - FLAGGED_DIR: artifact directory for QA flags (default: data/flagged)
// - RECORDS_PATH: harvested records file for init (default: data/records.jsonl)
//
// Worker:
// - BATCH_SIZE: jobs claimed per run (default: 20)
// - CONCURRENCY: translator calls in flight (default: 4)
// - JOB_TIMEOUT: per-job translator timeout (default: 5m)
//
// Orchestrator:
// - TOTAL_BATCHES: run budget, 0 = until empty (default: 0)
// - BATCH_DELAY: pause between runs (default: 5s)
// - MAX_CONSECUTIVE_FAILURES: fatal-stop threshold (default: 3)
// - RECLAIM_CRON: optional stuck-job sweep schedule (default: off)
// - RECLAIM_TIMEOUT: claim age before a sweep takes a job back (default: 30m)
//
// LLM:
// - LLM_API_KEY: API key (required for work/orchestrate)
// - LLM_API_URL: endpoint (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: model name (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT
//
// Translate:
// - SOURCE_LANG (default: zh), TARGET_LANG (default: en)
//
// QA:
// - QA_MAX_HAN_RATIO, QA_MAX_CJK_PUNCT_RATIO, QA_MIN_ABSTRACT_RUNES
//
// System:
// - LOG_LEVEL: debug|info|warn|error (default: info)

type Config struct {
	Queue        QueueConfig        `json:"queue"`
	Worker       WorkerConfig       `json:"worker"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	LLM          LLMConfig          `json:"llm"`
	Translate    TranslateConfig    `json:"translate"`
	QA           qa.Thresholds      `json:"qa"`
	LogLevel     string             `json:"log_level"`
}

type QueueConfig struct {
	Backend           string        `json:"backend"`
	Path              string        `json:"path"`
	CommitMaxAttempts int           `json:"commit_max_attempts"`
	CommitBackoff     time.Duration `json:"commit_backoff"`
	ApprovedDir       string        `json:"approved_dir"`
	FlaggedDir        string        `json:"flagged_dir"`
	RecordsPath       string        `json:"records_path"`
}

// Policy returns the commit retry policy the queue settings describe.
func (q QueueConfig) Policy() queue.CommitPolicy {
	return queue.CommitPolicy{
		MaxAttempts: q.CommitMaxAttempts,
		Backoff:     q.CommitBackoff,
	}
}

type WorkerConfig struct {
	BatchSize   int           `json:"batch_size"`
	Concurrency int           `json:"concurrency"`
	JobTimeout  time.Duration `json:"job_timeout"`
}

type OrchestratorConfig struct {
	TotalBatches           int           `json:"total_batches"`
	BatchDelay             time.Duration `json:"batch_delay"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"`
	ReclaimCron            string        `json:"reclaim_cron"`
	ReclaimTimeout         time.Duration `json:"reclaim_timeout"`
}

// LLMConfig holds the configuration for the translation backend. Any
// OpenAI-compatible provider works.
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
}

type TranslateConfig struct {
	SourceLanguage language.Tag `json:"source_language"`
	TargetLanguage language.Tag `json:"target_language"`
}

// Option is a function type for overriding Config values.
type Option func(*Config)

// New creates a Config from the environment, after loading .env if present.
func New(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	sourceLang, err := parseLanguage(getEnvString("SOURCE_LANG", "zh"))
	if err != nil {
		return nil, err
	}
	targetLang, err := parseLanguage(getEnvString("TARGET_LANG", "en"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Queue: QueueConfig{
			Backend:           getEnvString("QUEUE_BACKEND", "file"),
			Path:              getEnvString("QUEUE_PATH", "data/queue.json"),
			CommitMaxAttempts: getEnvInt("QUEUE_COMMIT_MAX_ATTEMPTS", 5),
			CommitBackoff:     time.Duration(getEnvInt("QUEUE_COMMIT_BACKOFF_MS", 200)) * time.Millisecond,
			ApprovedDir:       getEnvString("APPROVED_DIR", "data/approved"),
			FlaggedDir:        getEnvString("FLAGGED_DIR", "data/flagged"),
			RecordsPath:       getEnvString("RECORDS_PATH", "data/records.jsonl"),
		},
		Worker: WorkerConfig{
			BatchSize:   getEnvInt("BATCH_SIZE", 20),
			Concurrency: getEnvInt("CONCURRENCY", 4),
			JobTimeout:  getEnvDuration("JOB_TIMEOUT", 5*time.Minute),
		},
		Orchestrator: OrchestratorConfig{
			TotalBatches:           getEnvInt("TOTAL_BATCHES", 0),
			BatchDelay:             getEnvDuration("BATCH_DELAY", 5*time.Second),
			MaxConsecutiveFailures: getEnvInt("MAX_CONSECUTIVE_FAILURES", 3),
			ReclaimCron:            getEnvString("RECLAIM_CRON", ""),
			ReclaimTimeout:         getEnvDuration("RECLAIM_TIMEOUT", 30*time.Minute),
		},
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
		},
		Translate: TranslateConfig{
			SourceLanguage: sourceLang,
			TargetLanguage: targetLang,
		},
		QA: qa.Thresholds{
			MaxHanRatio:      getEnvFloat("QA_MAX_HAN_RATIO", 0.05),
			MaxCJKPunctRatio: getEnvFloat("QA_MAX_CJK_PUNCT_RATIO", 0.02),
			MinAbstractRunes: getEnvInt("QA_MIN_ABSTRACT_RUNES", 80),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.GetLogger().SetLevel(log.ParseLevel(config.LogLevel))
	return config, nil
}

func (c *Config) validate() error {
	switch c.Queue.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("QUEUE_BACKEND must be file or sqlite, got %q", c.Queue.Backend)
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	return nil
}

// ValidateLLM checks the settings that only translating runs need.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	return nil
}

func parseLanguage(s string) (language.Tag, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language %q: %w", s, err)
	}
	return tag, nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value from environment variables with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
