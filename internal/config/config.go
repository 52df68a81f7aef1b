// Package config provides configuration for the dalia backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModeMock selects the in-process mock LLM client.
const ModeMock = "MOCK"

// Config holds the backend configuration.
type Config struct {
	// Server settings
	HTTPPort       int    `yaml:"http_port"`
	FrontendOrigin string `yaml:"frontend_origin"`
	ChatRateLimit  int    `yaml:"chat_rate_limit"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// LLM settings
	Mode          string        `yaml:"mode"`
	LLMBaseURL    string        `yaml:"llm_base_url"`
	LLMAPIKey     string        `yaml:"llm_api_key"`
	ModelID       string        `yaml:"model_id"`
	LLMTimeout    time.Duration `yaml:"-"`
	LLMTimeoutRaw string        `yaml:"llm_timeout"`

	// Agent settings
	AgentTimeout    time.Duration `yaml:"-"`
	AgentTimeoutRaw string        `yaml:"agent_timeout"`
	HistoryRuns     int           `yaml:"history_runs"`
	MaxToolRounds   int           `yaml:"max_tool_rounds"`
	StreamBuffer    int           `yaml:"stream_buffer"`

	// Upstream APIs
	Trading212APIKey    string `yaml:"trading212_api_key"`
	Trading212APISecret string `yaml:"trading212_api_secret"`
	Trading212BaseURL   string `yaml:"trading212_base_url"`
	AlphaVantageAPIKey  string `yaml:"alpha_vantage_api_key"`
	AlphaVantageBaseURL string `yaml:"alpha_vantage_base_url"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load loads configuration from environment variables, then overlays the
// YAML file named by CONFIG_FILE when it is set.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:            getEnvInt("HTTP_PORT", 8000),
		FrontendOrigin:      getEnv("FRONTEND_ORIGIN", "http://localhost:3000"),
		ChatRateLimit:       getEnvInt("CHAT_RATE_LIMIT", 10),
		DatabaseURL:         getEnv("DATABASE_URL", "file:dalia.db?cache=shared&mode=rwc"),
		Mode:                getEnv("DALIA_MODE", ""),
		LLMBaseURL:          getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMAPIKey:           getEnv("LLM_API_KEY", os.Getenv("GEMINI_API_KEY")),
		ModelID:             getEnv("GEMINI_MODEL_ID", "gemini-2.0-flash"),
		LLMTimeout:          time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		AgentTimeout:        time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 300000)) * time.Millisecond,
		HistoryRuns:         getEnvInt("HISTORY_RUNS", 10),
		MaxToolRounds:       getEnvInt("MAX_TOOL_ROUNDS", 8),
		StreamBuffer:        getEnvInt("STREAM_BUFFER", 64),
		Trading212APIKey:    getEnv("TRADING212_API_KEY", ""),
		Trading212APISecret: getEnv("TRADING212_API_SECRET", ""),
		Trading212BaseURL:   getEnv("TRADING212_BASE_URL", "https://live.trading212.com/api/v0"),
		AlphaVantageAPIKey:  getEnv("ALPHA_VANTAGE_API_KEY", ""),
		AlphaVantageBaseURL: getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ApplyFile overlays values from a YAML file onto cfg. Keys absent from the
// file keep their current value. ${VAR} references are expanded from the
// environment before parsing.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if c.LLMTimeoutRaw != "" {
		d, err := time.ParseDuration(c.LLMTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing llm_timeout %q: %w", c.LLMTimeoutRaw, err)
		}
		c.LLMTimeout = d
	}
	if c.AgentTimeoutRaw != "" {
		d, err := time.ParseDuration(c.AgentTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agent_timeout %q: %w", c.AgentTimeoutRaw, err)
		}
		c.AgentTimeout = d
	}
	return nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	var errs []error
	if !c.IsMock() && strings.TrimSpace(c.LLMAPIKey) == "" {
		errs = append(errs, errors.New("LLM_API_KEY (or GEMINI_API_KEY) is not set or is empty; set it or run with DALIA_MODE=MOCK"))
	}
	if c.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("http_port must be positive, got %d", c.HTTPPort))
	}
	if c.StreamBuffer < 0 {
		errs = append(errs, fmt.Errorf("stream_buffer must not be negative, got %d", c.StreamBuffer))
	}
	if c.MaxToolRounds < 1 {
		errs = append(errs, fmt.Errorf("max_tool_rounds must be at least 1, got %d", c.MaxToolRounds))
	}
	return errors.Join(errs...)
}

// IsMock reports whether the mock LLM client is selected.
func (c *Config) IsMock() bool {
	return strings.EqualFold(c.Mode, ModeMock)
}

// Trading212Configured reports whether broker credentials are present.
func (c *Config) Trading212Configured() bool {
	return c.Trading212APIKey != "" && c.Trading212APISecret != ""
}

// AlphaVantageConfigured reports whether a market data key is present.
func (c *Config) AlphaVantageConfigured() bool {
	return c.AlphaVantageAPIKey != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
