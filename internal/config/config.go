package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Oracle backends.
const (
	OracleGemini = "gemini"
	OracleOpenAI = "openai"
	OracleLocal  = "local"
)

// Config holds the application configuration.
type Config struct {
	Oracle        string        `mapstructure:"agent_oracle"`
	GeminiAPIKey  string        `mapstructure:"gemini_api_key"`
	GeminiModel   string        `mapstructure:"gemini_model"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	OpenAIModel   string        `mapstructure:"openai_model"`
	LocalBaseURL  string        `mapstructure:"local_base_url"`
	LocalModel    string        `mapstructure:"local_model"`
	OracleTimeout time.Duration `mapstructure:"oracle_timeout"`

	EmulatorURL   string `mapstructure:"emulator_url"`
	MaxPlanLength int    `mapstructure:"max_plan_length"`
	StateRetries  int    `mapstructure:"state_retries"`
	PlanFile      string `mapstructure:"plan_file"`
	SaveDir       string `mapstructure:"save_dir"`

	RedisAddr   string `mapstructure:"redis_addr"`
	RedisStream string `mapstructure:"redis_stream"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

var defaults = map[string]any{
	"agent_oracle":    OracleGemini,
	"gemini_api_key":  "",
	"gemini_model":    "gemini-2.5-flash",
	"openai_api_key":  "",
	"openai_base_url": "https://api.openai.com/v1",
	"openai_model":    "gpt-4o-mini",
	"local_base_url":  "http://localhost:11434/v1",
	"local_model":     "llama3.1",
	"oracle_timeout":  10 * time.Second,
	"emulator_url":    "ws://localhost:8000/ws",
	"max_plan_length": 4,
	"state_retries":   3,
	"plan_file":       "",
	"save_dir":        ".saves",
	"redis_addr":      "",
	"redis_stream":    "agent:steps",
	"log_level":       "info",
	"log_file":        "agent.log",
}

// LoadConfig reads .env (if present), the optional YAML file at path, and the
// environment. Environment variables win over the file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Oracle = strings.ToLower(strings.TrimSpace(cfg.Oracle))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected oracle can be reached and that the loop
// limits are usable.
func (c *Config) Validate() error {
	switch c.Oracle {
	case OracleGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is not set")
		}
	case OracleOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
	case OracleLocal:
	default:
		return fmt.Errorf("unknown agent_oracle %q (want %s, %s or %s)", c.Oracle, OracleGemini, OracleOpenAI, OracleLocal)
	}
	if c.MaxPlanLength < 1 {
		return fmt.Errorf("max_plan_length must be at least 1, got %d", c.MaxPlanLength)
	}
	if c.StateRetries < 1 {
		return fmt.Errorf("state_retries must be at least 1, got %d", c.StateRetries)
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("oracle_timeout must be positive, got %s", c.OracleTimeout)
	}
	return nil
}
