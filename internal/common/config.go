package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	LLM         LLMConfig        `toml:"llm"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	Tokens      TokensConfig     `toml:"tokens"`
	Connectors  ConnectorsConfig `toml:"connectors"`
	Generation  GenerationConfig `toml:"generation"`
	Jobs        JobsConfig       `toml:"jobs"`
	Notifier    NotifierConfig   `toml:"notifier"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // Default provider: "gemini" or "claude" (default: "gemini")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for content generation (default: "gemini-2.0-flash")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between API calls (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for content generation (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between API calls (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// TokensConfig contains configuration for the external token provider that
// resolves (user, provider) pairs to plaintext bearer tokens.
type TokensConfig struct {
	Endpoint string `toml:"endpoint"` // Token provider base URL (empty = env-backed static tokens)
	Timeout  string `toml:"timeout"`  // Request timeout as duration string (default: "10s")
}

// ConnectorsConfig contains per-source connector configuration
type ConnectorsConfig struct {
	Calendar    CalendarConfig    `toml:"calendar"`
	Messaging   MessagingConfig   `toml:"messaging"`
	Spreadsheet SpreadsheetConfig `toml:"spreadsheet"`
}

type CalendarConfig struct {
	BaseURL string `toml:"base_url"` // Calendar API base URL (default: Google Calendar v3)
	Timeout string `toml:"timeout"`  // Request timeout (default: "30s")
}

type MessagingConfig struct {
	BaseURL string `toml:"base_url"` // Messaging API base URL (default: Slack Web API)
	Timeout string `toml:"timeout"`  // Request timeout (default: "30s")
}

type SpreadsheetConfig struct {
	BaseURL string `toml:"base_url"` // Spreadsheet API base URL (default: Google Sheets v4)
	Timeout string `toml:"timeout"`  // Request timeout (default: "30s")
}

// GenerationConfig contains document generation pipeline configuration
type GenerationConfig struct {
	Language       string `toml:"language"`         // Output language for generated content (default: "ja")
	SectionTimeout string `toml:"section_timeout"`  // Per-section AI call timeout (default: "2m")
	MaxSections    int    `toml:"max_sections"`     // Upper bound on planned sections per document (default: 30)
	ReplaceOnRerun bool   `toml:"replace_on_rerun"` // Delete prior sections when regenerating a document (default: true)
}

// JobsConfig contains generation job housekeeping configuration
type JobsConfig struct {
	StaleAfter     string `toml:"stale_after"`     // Age after which a processing job is considered stuck (default: "30m")
	ReaperSchedule string `toml:"reaper_schedule"` // Cron schedule for the stale-job reaper (default: "*/5 * * * *")
}

// NotifierConfig contains job status notifier configuration
type NotifierConfig struct {
	PollInterval string `toml:"poll_interval"` // Polling fallback interval (default: "3s")
	PushTimeout  string `toml:"push_timeout"`  // Time to wait for the push channel before falling back (default: "10s")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in trado.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Gemini: GeminiConfig{
			APIKey:      "", // User must provide API key (no fallback)
			Model:       "gemini-2.0-flash",
			Timeout:     "5m",
			RateLimit:   "4s", // Default to 4s (15 RPM) for free tier
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		Tokens: TokensConfig{
			Endpoint: "",
			Timeout:  "10s",
		},
		Connectors: ConnectorsConfig{
			Calendar: CalendarConfig{
				BaseURL: "https://www.googleapis.com/calendar/v3",
				Timeout: "30s",
			},
			Messaging: MessagingConfig{
				BaseURL: "https://slack.com/api",
				Timeout: "30s",
			},
			Spreadsheet: SpreadsheetConfig{
				BaseURL: "https://sheets.googleapis.com/v4",
				Timeout: "30s",
			},
		},
		Generation: GenerationConfig{
			Language:       "ja",
			SectionTimeout: "2m",
			MaxSections:    30,
			ReplaceOnRerun: true,
		},
		Jobs: JobsConfig{
			StaleAfter:     "30m",
			ReaperSchedule: "*/5 * * * *",
		},
		Notifier: NotifierConfig{
			PollInterval: "3s",
			PushTimeout:  "10s",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier files. Priority: CLI flags > environment variables > last config
// file > ... > first config file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: TRADO_ENV, fallback: GO_ENV)
	if env := os.Getenv("TRADO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("TRADO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TRADO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("TRADO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("TRADO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TRADO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM provider selection
	if provider := os.Getenv("TRADO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// API keys
	if apiKey := os.Getenv("TRADO_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("TRADO_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}

	// Token provider
	if endpoint := os.Getenv("TRADO_TOKENS_ENDPOINT"); endpoint != "" {
		config.Tokens.Endpoint = endpoint
	}

	// Generation
	if lang := os.Getenv("TRADO_GENERATION_LANGUAGE"); lang != "" {
		config.Generation.Language = lang
	}
}

// ApplyFlagOverrides applies command-line flag values to the configuration.
// Command-line flags have highest priority.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
