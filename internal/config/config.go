package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig             `yaml:"store" mapstructure:"store"`
	Log        LogConfig               `yaml:"log" mapstructure:"log"`
	Server     ServerConfig            `yaml:"server" mapstructure:"server"`
	Source     SourceConfig            `yaml:"source" mapstructure:"source"`
	Pipeline   PipelineConfig          `yaml:"pipeline" mapstructure:"pipeline"`
	Plays      map[string]PlayOverride `yaml:"plays" mapstructure:"plays"`
	Rationale  RationaleConfig         `yaml:"rationale" mapstructure:"rationale"`
	Executor   ExecutorConfig          `yaml:"executor" mapstructure:"executor"`
	Salesforce SalesforceConfig        `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig            `yaml:"notion" mapstructure:"notion"`
	Anthropic  AnthropicConfig         `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     ProviderConfig          `yaml:"openai" mapstructure:"openai"`
	Ollama     ProviderConfig          `yaml:"ollama" mapstructure:"ollama"`
	Gemini     ProviderConfig          `yaml:"gemini" mapstructure:"gemini"`
	Slack      SlackConfig             `yaml:"slack" mapstructure:"slack"`
	Tableau    TableauConfig           `yaml:"tableau" mapstructure:"tableau"`
	Events     EventsConfig            `yaml:"events" mapstructure:"events"`
	Schedule   []ScheduleEntry         `yaml:"schedule" mapstructure:"schedule"`
	Resilience ResilienceConfig        `yaml:"resilience" mapstructure:"resilience"`
}

// StoreConfig configures the run/approval database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// JWTSecret enables HS256 bearer auth on mutating routes when set.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// SourceConfig selects where opportunity records come from.
type SourceConfig struct {
	Kind        string `yaml:"kind" mapstructure:"kind"`
	Path        string `yaml:"path" mapstructure:"path"`
	Sheet       string `yaml:"sheet" mapstructure:"sheet"`
	Table       string `yaml:"table" mapstructure:"table"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Limit       int    `yaml:"limit" mapstructure:"limit"`
}

// PipelineConfig holds the tunable scoring heuristics.
type PipelineConfig struct {
	TopN               int     `yaml:"top_n" mapstructure:"top_n"`
	RecoveryFactor     float64 `yaml:"recovery_factor" mapstructure:"recovery_factor"`
	NotificationWeight float64 `yaml:"notification_weight" mapstructure:"notification_weight"`
	HighRiskThreshold  float64 `yaml:"high_risk_threshold" mapstructure:"high_risk_threshold"`
}

// PlayOverride adjusts one play's variant settings. Zero values keep the
// built-in setting.
type PlayOverride struct {
	DueOffsetDays int    `yaml:"due_offset_days" mapstructure:"due_offset_days"`
	Channel       string `yaml:"channel" mapstructure:"channel"`
	ViewName      string `yaml:"view_name" mapstructure:"view_name"`
	ViewURL       string `yaml:"view_url" mapstructure:"view_url"`
}

// RationaleConfig configures how action rationales are written.
type RationaleConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"`
	Model        string `yaml:"model" mapstructure:"model"`
	PromptsPath  string `yaml:"prompts_path" mapstructure:"prompts_path"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	RedisURL     string `yaml:"redis_url" mapstructure:"redis_url"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExecutorConfig configures approved-action execution.
type ExecutorConfig struct {
	Mode        string `yaml:"mode" mapstructure:"mode"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Configured reports whether JWT credentials are present.
func (c SalesforceConfig) Configured() bool {
	return c.ClientID != "" && c.Username != "" && c.KeyPath != ""
}

// NotionConfig holds Notion API credentials and the action board database.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ActionDB string `yaml:"action_db" mapstructure:"action_db"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ProviderConfig holds settings for an OpenAI-compatible chat endpoint.
type ProviderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	BotToken       string `yaml:"bot_token" mapstructure:"bot_token"`
	DefaultChannel string `yaml:"default_channel" mapstructure:"default_channel"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
}

// TableauConfig holds Tableau REST API settings.
type TableauConfig struct {
	ServerURL    string `yaml:"server_url" mapstructure:"server_url"`
	Site         string `yaml:"site" mapstructure:"site"`
	TokenName    string `yaml:"token_name" mapstructure:"token_name"`
	TokenSecret  string `yaml:"token_secret" mapstructure:"token_secret"`
	APIVersion   string `yaml:"api_version" mapstructure:"api_version"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// Configured reports whether a server and token are present.
func (c TableauConfig) Configured() bool {
	return c.ServerURL != "" && c.TokenName != "" && c.TokenSecret != ""
}

// EventsConfig configures event publishing.
type EventsConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// ScheduleEntry runs one play on a cron expression (seconds field first).
type ScheduleEntry struct {
	Play   string         `yaml:"play" mapstructure:"play"`
	Cron   string         `yaml:"cron" mapstructure:"cron"`
	Params map[string]any `yaml:"params" mapstructure:"params"`
}

// ResilienceConfig tunes retries and circuit breakers for external calls.
type ResilienceConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Accepted enum values.
var (
	StoreDrivers       = []string{"sqlite", "postgres"}
	SourceKinds        = []string{"demo", "csv", "xlsx", "salesforce", "postgres"}
	RationaleProviders = []string{"none", "anthropic", "openai", "ollama", "gemini"}
	ExecutorModes      = []string{"stub", "live"}
)

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("config: no .env file loaded", zap.Error(err))
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "studio.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("source.kind", "demo")
	v.SetDefault("source.table", "opportunities")
	v.SetDefault("source.limit", 2000)
	v.SetDefault("pipeline.top_n", 5)
	v.SetDefault("pipeline.recovery_factor", 0.7)
	v.SetDefault("pipeline.notification_weight", 0.1)
	v.SetDefault("pipeline.high_risk_threshold", 50)
	v.SetDefault("rationale.provider", "none")
	v.SetDefault("rationale.cache_ttl_secs", 3600)
	v.SetDefault("rationale.timeout_secs", 20)
	v.SetDefault("rationale.max_tokens", 200)
	v.SetDefault("executor.mode", "stub")
	v.SetDefault("executor.concurrency", 4)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("ollama.base_url", "http://localhost:11434/v1")
	v.SetDefault("ollama.model", "llama3")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("slack.default_channel", "sales-alerts")
	v.SetDefault("tableau.api_version", "3.21")
	v.SetDefault("tableau.cache_ttl_secs", 600)
	v.SetDefault("events.topic", "studio.events")
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode: "run",
// "serve" or "execute".
func (c *Config) Validate(mode string) error {
	var errs []string

	oneOf := func(field, val string, allowed []string) {
		if !slices.Contains(allowed, val) {
			errs = append(errs, fmt.Sprintf("%s must be one of %v, got %q", field, allowed, val))
		}
	}

	oneOf("store.driver", c.Store.Driver, StoreDrivers)
	oneOf("source.kind", c.Source.Kind, SourceKinds)
	oneOf("rationale.provider", c.Rationale.Provider, RationaleProviders)
	oneOf("executor.mode", c.Executor.Mode, ExecutorModes)

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres driver")
	}
	switch c.Source.Kind {
	case "csv", "xlsx":
		if c.Source.Path == "" {
			errs = append(errs, fmt.Sprintf("source.path is required for the %s source", c.Source.Kind))
		}
	case "postgres":
		if c.Source.DatabaseURL == "" && c.Store.DatabaseURL == "" {
			errs = append(errs, "source.database_url is required for the postgres source")
		}
	}

	if c.Pipeline.TopN < 1 {
		errs = append(errs, "pipeline.top_n must be >= 1")
	}
	if c.Pipeline.RecoveryFactor < 0 || c.Pipeline.RecoveryFactor > 1 {
		errs = append(errs, "pipeline.recovery_factor must be between 0 and 1")
	}
	if c.Pipeline.NotificationWeight < 0 || c.Pipeline.NotificationWeight > 1 {
		errs = append(errs, "pipeline.notification_weight must be between 0 and 1")
	}
	if c.Pipeline.HighRiskThreshold < 0 || c.Pipeline.HighRiskThreshold > 100 {
		errs = append(errs, "pipeline.high_risk_threshold must be between 0 and 100")
	}

	switch mode {
	case "run":
	case "execute":
		if c.Executor.Concurrency < 1 || c.Executor.Concurrency > 32 {
			errs = append(errs, "executor.concurrency must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Executor.Concurrency < 1 || c.Executor.Concurrency > 32 {
			errs = append(errs, "executor.concurrency must be between 1 and 32")
		}
		for i, s := range c.Schedule {
			if s.Play == "" || s.Cron == "" {
				errs = append(errs, fmt.Sprintf("schedule[%d] needs both play and cron", i))
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
