// Package config loads application configuration from config.yaml and
// SCORER_* environment variables, and initializes the global logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/db"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/internal/scorer"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Geo        GeoConfig        `yaml:"geo" mapstructure:"geo"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	SkipTrace  SkipTraceConfig  `yaml:"skiptrace" mapstructure:"skiptrace"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Insight    InsightConfig    `yaml:"insight" mapstructure:"insight"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Adapter    AdapterConfig    `yaml:"adapter" mapstructure:"adapter"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures batch scoring.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	PageSize       int `yaml:"page_size" mapstructure:"page_size"`
}

// GeoConfig configures county and distance resolution.
type GeoConfig struct {
	LookupTimeoutSecs int               `yaml:"lookup_timeout_secs" mapstructure:"lookup_timeout_secs"`
	Concurrency       int               `yaml:"concurrency" mapstructure:"concurrency"`
	Counties          map[string]string `yaml:"counties" mapstructure:"counties"`
}

// LookupTimeout returns the per-call geocode timeout.
func (g GeoConfig) LookupTimeout() time.Duration {
	return time.Duration(g.LookupTimeoutSecs) * time.Second
}

// GeocodeConfig configures the geocoding providers. Census needs no key;
// Google is used when a key is set.
type GeocodeConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	GoogleAPIKey string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// EnrichConfig configures the enrichment orchestrator.
type EnrichConfig struct {
	Confidence      float64 `yaml:"confidence" mapstructure:"confidence"`
	NamedConfidence float64 `yaml:"named_confidence" mapstructure:"named_confidence"`
	MaxConcurrent   int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// Timeout returns the per-provider lookup timeout.
func (e EnrichConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// SkipTraceConfig holds skip-trace actor credentials.
type SkipTraceConfig struct {
	ActorID  string `yaml:"actor_id" mapstructure:"actor_id"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ApifyConfig holds Apify API settings.
type ApifyConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	WaitSecs  int     `yaml:"wait_secs" mapstructure:"wait_secs"`
}

// NotionConfig holds Notion credentials and the outreach database.
type NotionConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	OutreachDB  string `yaml:"outreach_db" mapstructure:"outreach_db"`
	MinPriority string `yaml:"min_priority" mapstructure:"min_priority"`
}

// AnthropicConfig holds Anthropic API settings for analysis narratives.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// InsightConfig controls the narrative attached to analyses. The LLM
// summary is used only when an Anthropic key is set.
type InsightConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the LLM summary timeout.
func (i InsightConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSecs) * time.Second
}

// RulesConfig locates the investor rules. File wins over inline keys;
// with neither, the built-in defaults apply.
type RulesConfig struct {
	File   string         `yaml:"file" mapstructure:"file"`
	Inline map[string]any `yaml:",inline" mapstructure:",remain"`
}

// AdapterConfig configures record conversion.
type AdapterConfig struct {
	SchemaMode string `yaml:"schema_mode" mapstructure:"schema_mode"`
	State      string `yaml:"state" mapstructure:"state"`
}

// IngestConfig configures ingest runs.
type IngestConfig struct {
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// ResilienceConfig tunes retries and circuit breakers around the geocoder
// and enrichment providers. Zero values keep the built-in defaults.
type ResilienceConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Retry returns the retry policy for upstream calls.
func (r ResilienceConfig) Retry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if r.MaxAttempts > 0 {
		cfg.MaxAttempts = r.MaxAttempts
	}
	if r.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(r.InitialBackoffMs) * time.Millisecond
	}
	if r.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(r.MaxBackoffMs) * time.Millisecond
	}
	return cfg
}

// Circuit returns the breaker settings shared by every upstream.
func (r ResilienceConfig) Circuit() resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig()
	if r.FailureThreshold > 0 {
		cfg.FailureThreshold = r.FailureThreshold
	}
	if r.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(r.ResetTimeoutSecs) * time.Second
	}
	return cfg
}

// secretKeys are read from SCORER_* variables even when no config file
// mentions them.
var secretKeys = []string{
	"geocode.google_api_key",
	"skiptrace.username",
	"skiptrace.password",
	"apify.token",
	"notion.token",
	"notion.outreach_db",
	"anthropic.key",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCORER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "property-scorer.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrency", 8)
	v.SetDefault("batch.page_size", 500)
	v.SetDefault("geo.lookup_timeout_secs", 10)
	v.SetDefault("geo.concurrency", 8)
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.rate_limit", 5.0)
	v.SetDefault("enrich.confidence", 0.7)
	v.SetDefault("enrich.named_confidence", 0.8)
	v.SetDefault("enrich.max_concurrent", 5)
	v.SetDefault("enrich.timeout_secs", 60)
	v.SetDefault("enrich.max_retries", 3)
	v.SetDefault("skiptrace.actor_id", "connected-investors-skip-trace-service")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.rate_limit", 5.0)
	v.SetDefault("apify.wait_secs", 60)
	v.SetDefault("notion.min_priority", string(model.PriorityHigh))
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("insight.enabled", true)
	v.SetDefault("insight.timeout_secs", 20)
	v.SetDefault("adapter.schema_mode", string(adapter.SchemaVNext))
	v.SetDefault("adapter.state", "TN")
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)

	// Keys without a default are invisible to AutomaticEnv; bind them so
	// credentials can come from the environment alone.
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

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

// Commands validated by Validate.
const (
	ModeServe    = "serve"
	ModeIngest   = "ingest"
	ModeScore    = "score"
	ModeEnrich   = "enrich"
	ModeOutreach = "outreach"
	ModeApify    = "apify"
	ModeMigrate  = "migrate"
)

// Validate checks the settings a command needs and reports every problem
// at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for sqlite (a file path)")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}

	if _, err := adapter.ParseSchemaMode(c.Adapter.SchemaMode); err != nil {
		errs = append(errs, fmt.Sprintf("adapter.schema_mode %q is not legacy or vnext", c.Adapter.SchemaMode))
	}

	switch mode {
	case ModeMigrate, ModeIngest:
	case ModeServe:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	case ModeScore:
		if c.Batch.MaxConcurrency <= 0 {
			errs = append(errs, "batch.max_concurrency must be positive")
		}
	case ModeEnrich:
		if c.Apify.Token == "" {
			errs = append(errs, "apify.token is required for enrichment")
		}
		if c.SkipTrace.Username == "" || c.SkipTrace.Password == "" {
			errs = append(errs, "skiptrace.username and skiptrace.password are required for enrichment")
		}
		if c.Enrich.Confidence < 0 || c.Enrich.Confidence > 1 {
			errs = append(errs, "enrich.confidence must be in [0,1]")
		}
	case ModeApify:
		if c.Apify.Token == "" {
			errs = append(errs, "apify.token is required to read datasets")
		}
	case ModeOutreach:
		if c.Notion.Token == "" || c.Notion.OutreachDB == "" {
			errs = append(errs, "notion.token and notion.outreach_db are required for outreach")
		}
		if _, ok := model.ParsePriority(c.Notion.MinPriority); !ok {
			errs = append(errs, fmt.Sprintf("notion.min_priority %q is not a priority", c.Notion.MinPriority))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// SchemaMode returns the configured adapter schema mode, defaulting to vnext.
func (c *Config) SchemaMode() adapter.SchemaMode {
	m, err := adapter.ParseSchemaMode(c.Adapter.SchemaMode)
	if err != nil {
		return adapter.SchemaVNext
	}
	return m
}

// LoadRules returns the investor rules from rules.file, inline rules keys,
// or the defaults. Invalid rules are returned with their error so the
// engine can fall back and warn.
func (r RulesConfig) LoadRules() (model.InvestorRules, error) {
	if r.File != "" {
		return scorer.LoadRulesFile(r.File)
	}
	if len(r.Inline) == 0 {
		return scorer.DefaultRules(), nil
	}
	data, err := yaml.Marshal(r.Inline)
	if err != nil {
		return scorer.DefaultRules(), eris.Wrap(err, "config: marshal inline rules")
	}
	return scorer.ParseRules(data)
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
