package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingSetting = errors.New("missing required setting")
	ErrInvalidSetting = errors.New("invalid setting")
)

// ConfigError names the environment key that stopped startup
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Key)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Err, e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Settings are the process-level values read from the environment
type Settings struct {
	Port        string
	LogMode     string
	DatabaseURL string

	LLMProvider   string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	CompletionTimeout     time.Duration
	CompletionMaxAttempts int
	CompletionBackoff     time.Duration
	CompletionMaxTokens   int
	MaxHistoryPairs       int

	RateLimitInterval time.Duration
	RateLimitBurst    int

	RulesPath        string
	SystemPromptPath string
}

// LoadDotEnv loads .env from the working directory, then from the project root
// relative to cmd/<name>/. Reports whether a file was found.
func LoadDotEnv() bool {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			return false
		}
	}
	return true
}

// LoadSettings reads Settings from the environment. Call LoadDotEnv first.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		Port:          envString("PORT", "8080"),
		LogMode:       envString("LOG_MODE", "dev"),
		DatabaseURL:   envString("DATABASE_URL", ""),
		LLMProvider:   strings.ToLower(envString("LLM_PROVIDER", ProviderGemini)),
		GeminiAPIKey:  envString("GEMINI_API_KEY", ""),
		GeminiModel:   envString("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:  envString("OPENAI_API_KEY", ""),
		OpenAIModel:   envString("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: envString("OPENAI_BASE_URL", ""),
		RulesPath:     envString("RULES_PATH", ""),

		SystemPromptPath: envString("SYSTEM_PROMPT_PATH", ""),
	}

	if s.DatabaseURL == "" {
		return nil, &ConfigError{Key: "DATABASE_URL", Err: ErrMissingSetting}
	}

	switch s.LLMProvider {
	case ProviderGemini:
		if s.GeminiAPIKey == "" {
			return nil, &ConfigError{Key: "GEMINI_API_KEY", Reason: "required when LLM_PROVIDER=gemini", Err: ErrMissingSetting}
		}
	case ProviderOpenAI:
		if s.OpenAIAPIKey == "" {
			return nil, &ConfigError{Key: "OPENAI_API_KEY", Reason: "required when LLM_PROVIDER=openai", Err: ErrMissingSetting}
		}
	default:
		return nil, &ConfigError{Key: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", s.LLMProvider), Err: ErrInvalidSetting}
	}

	var err error
	if s.CompletionTimeout, err = envDuration("COMPLETION_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if s.CompletionBackoff, err = envDuration("COMPLETION_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}
	if s.RateLimitInterval, err = envDuration("RATE_LIMIT_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}
	if s.CompletionMaxAttempts, err = envPositiveInt("COMPLETION_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if s.CompletionMaxTokens, err = envPositiveInt("COMPLETION_MAX_TOKENS", 2048); err != nil {
		return nil, err
	}
	if s.MaxHistoryPairs, err = envPositiveInt("MAX_HISTORY_PAIRS", 10); err != nil {
		return nil, err
	}
	if s.RateLimitBurst, err = envPositiveInt("RATE_LIMIT_BURST", 2); err != nil {
		return nil, err
	}

	return s, nil
}

func envString(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func envPositiveInt(name string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 1 {
		return 0, &ConfigError{Key: name, Reason: fmt.Sprintf("want a positive integer, got %q", v), Err: ErrInvalidSetting}
	}
	return i, nil
}

// envDuration accepts Go durations ("90s") or a bare number of seconds
func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, &ConfigError{Key: name, Reason: fmt.Sprintf("want a positive duration, got %q", v), Err: ErrInvalidSetting}
	}
	return d, nil
}
