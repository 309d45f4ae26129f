package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// defaultUserAgent mimics a desktop browser. Wikipedia serves simplified
// markup (and sometimes 403s) to clients with library-default agents.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"

// Config holds all backfill settings, populated from environment variables.
type Config struct {
	SeasonURL    string
	OutputPath   string
	UserAgent    string
	FetchTimeout time.Duration

	// Replicate model configuration.
	ReplicateToken   string
	ReplicateModel   string
	ReplicateBaseURL string
	ModelTimeout     time.Duration
	PollInterval     time.Duration

	LogLevel  string
	LogFormat string

	// Optional Kafka publishing configuration.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	// Optional Pushgateway for one-shot run metrics.
	PushgatewayURL string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	fetchTimeout, err := parseDurationEnv("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	modelTimeout, err := parseDurationEnv("MODEL_TIMEOUT", "120s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDurationEnv("POLL_INTERVAL", "2s")
	if err != nil {
		return nil, err
	}

	kafkaEnabled := os.Getenv("KAFKA_ENABLED") == "true"

	cfg := &Config{
		SeasonURL:    envOrDefault("SEASON_URL", "https://en.wikipedia.org/wiki/1975_Atlantic_hurricane_season"),
		OutputPath:   envOrDefault("OUTPUT_PATH", "hurricanes_1975.csv"),
		UserAgent:    envOrDefault("USER_AGENT", defaultUserAgent),
		FetchTimeout: fetchTimeout,

		ReplicateToken:   os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateModel:   envOrDefault("REPLICATE_MODEL", "meta/meta-llama-3-70b-instruct"),
		ReplicateBaseURL: envOrDefault("REPLICATE_BASE_URL", "https://api.replicate.com"),
		ModelTimeout:     modelTimeout,
		PollInterval:     pollInterval,

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "storm-season-backfill"),
		KafkaEnabled: kafkaEnabled,

		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	if !isHTTPURL(cfg.SeasonURL) {
		return nil, errors.New("invalid SEASON_URL: must be an absolute http(s) URL")
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("OUTPUT_PATH is required")
	}
	if cfg.ReplicateToken == "" {
		return nil, errors.New("REPLICATE_API_TOKEN is required")
	}
	if !strings.Contains(cfg.ReplicateModel, "/") {
		return nil, errors.New("invalid REPLICATE_MODEL: expected owner/name")
	}
	if !isHTTPURL(cfg.ReplicateBaseURL) {
		return nil, errors.New("invalid REPLICATE_BASE_URL: must be an absolute http(s) URL")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

// isHTTPURL reports whether s is an absolute http or https URL.
func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// envOrDefault returns the environment value for key, or def when unset or empty.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseDurationEnv parses a positive duration from the environment.
func parseDurationEnv(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

// parseBrokers splits a comma-separated broker list, dropping empty entries.
func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
