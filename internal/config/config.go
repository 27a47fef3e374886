package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

const defaultMaxUploadBytes = 16 << 20

type Config struct {
	ListenAddr         string   `yaml:"listen_addr"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	LLMProvider                string `yaml:"llm_provider"`
	LLMModel                   string `yaml:"llm_model"`
	LLMTimeoutSeconds          int    `yaml:"llm_timeout_seconds"`
	GoogleAPIKey               string `yaml:"google_api_key"`
	AnthropicAPIKey            string `yaml:"anthropic_api_key"`
	GeminiBaseURL              string `yaml:"gemini_base_url"`
	AnthropicBaseURL           string `yaml:"anthropic_base_url"`
	CredentialHeader           string `yaml:"credential_header"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	DBPath              string `yaml:"db_path"`
	UploadDir           string `yaml:"upload_dir"`
	MaxUploadBytes      int64  `yaml:"max_upload_bytes"`
	UploadSweepSchedule string `yaml:"upload_sweep_schedule"`
	UploadMaxAgeMinutes int    `yaml:"upload_max_age_minutes"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`
	DigestSchedule string `yaml:"digest_schedule"`
	Timezone       string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig reads config.yaml (or CONFIG_PATH), then .env (or DOTENV_PATH),
// then applies env overrides and defaults. Invalid configuration is fatal.
func LoadConfig() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	dotenvPath := ".env"
	if envPath := os.Getenv("DOTENV_PATH"); envPath != "" {
		dotenvPath = envPath
	}
	// godotenv.Load never overrides variables already set in the process.
	if err := godotenv.Load(dotenvPath); err == nil {
		log.Printf("Loaded environment from %s", dotenvPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("error parsing %s: %w", dotenvPath, err)
	}

	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	if err := envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.GoogleAPIKey, "GOOGLE_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.GeminiBaseURL, "GEMINI_BASE_URL")
	envOverride(&cfg.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	envOverride(&cfg.CredentialHeader, "CREDENTIAL_HEADER")
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.UploadDir, "UPLOAD_DIR")
	if err := envOverrideInt64(&cfg.MaxUploadBytes, "MAX_UPLOAD_BYTES"); err != nil {
		return cfg, err
	}
	envOverrideAllowEmpty(&cfg.UploadSweepSchedule, "UPLOAD_SWEEP_SCHEDULE")
	if err := envOverrideInt(&cfg.UploadMaxAgeMinutes, "UPLOAD_MAX_AGE_MINUTES"); err != nil {
		return cfg, err
	}
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.DefaultCredential() == "" {
		log.Printf("WARNING: no default %s API key configured; requests must send %s", cfg.LLMProvider, cfg.CredentialHeader)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5000"
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderGemini
	}
	if cfg.LLMModel == "" {
		switch cfg.LLMProvider {
		case ProviderAnthropic:
			cfg.LLMModel = DefaultAnthropicModel
		default:
			cfg.LLMModel = DefaultGeminiModel
		}
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 60
	}
	if cfg.CredentialHeader == "" {
		cfg.CredentialHeader = "X-Gemini-Key"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./sortly.db"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.UploadSweepSchedule == "" {
		cfg.UploadSweepSchedule = "*/30 * * * *"
	}
	if cfg.UploadMaxAgeMinutes == 0 {
		cfg.UploadMaxAgeMinutes = 60
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

// Validate checks values that applyDefaults cannot fix.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("llm_provider must be '%s' or '%s', got '%s'", ProviderGemini, ProviderAnthropic, c.LLMProvider)
	}
	if c.LLMTimeoutSeconds < 1 {
		return fmt.Errorf("invalid llm_timeout_seconds '%d': must be >= 1", c.LLMTimeoutSeconds)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("invalid max_upload_bytes '%d': must be >= 1", c.MaxUploadBytes)
	}
	if c.UploadMaxAgeMinutes < 1 {
		return fmt.Errorf("invalid upload_max_age_minutes '%d': must be >= 1", c.UploadMaxAgeMinutes)
	}
	for name, schedule := range map[string]string{
		"upload_sweep_schedule": c.UploadSweepSchedule,
		"digest_schedule":       c.DigestSchedule,
	} {
		if scheduleDisabled(schedule) {
			continue
		}
		if _, err := ParseSchedule(schedule); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, schedule, err)
		}
	}
	if !scheduleDisabled(c.DigestSchedule) && !c.SlackConfigured() {
		return fmt.Errorf("digest_schedule requires slack_bot_token and slack_channel_id")
	}
	return nil
}

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(strings.TrimSpace(expr))
}

// UploadSweepEnabled is false when upload_sweep_schedule is "off".
func (c Config) UploadSweepEnabled() bool {
	return !scheduleDisabled(c.UploadSweepSchedule)
}

func (c Config) DigestEnabled() bool {
	return !scheduleDisabled(c.DigestSchedule)
}

func scheduleDisabled(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "off")
}

// DefaultCredential is the server-side API key for the configured provider.
func (c Config) DefaultCredential() string {
	if c.LLMProvider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.GoogleAPIKey
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) UploadMaxAge() time.Duration {
	return time.Duration(c.UploadMaxAgeMinutes) * time.Minute
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideInt64(field *int64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
