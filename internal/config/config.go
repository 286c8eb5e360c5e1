package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Filter   FilterConfig   `yaml:"filter" mapstructure:"filter"`
	Enrich   EnrichConfig   `yaml:"enrich" mapstructure:"enrich"`
	Finance  FinanceConfig  `yaml:"finance" mapstructure:"finance"`
	Verifier VerifierConfig `yaml:"verifier" mapstructure:"verifier"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CatalogConfig configures access to the lot catalog site.
type CatalogConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	SearchPath        string  `yaml:"search_path" mapstructure:"search_path"`
	DetailAPIURL      string  `yaml:"detail_api_url" mapstructure:"detail_api_url"`
	MaxPages          int     `yaml:"max_pages" mapstructure:"max_pages"`
	PageTimeoutSecs   int     `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	DetailTimeoutSecs int     `yaml:"detail_timeout_secs" mapstructure:"detail_timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Retries           int     `yaml:"retries" mapstructure:"retries"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	Cookie            string  `yaml:"cookie" mapstructure:"cookie"`
	ZeroResultMarker  string  `yaml:"zero_result_marker" mapstructure:"zero_result_marker"`
	NonInteractive    bool    `yaml:"non_interactive" mapstructure:"non_interactive"`
}

// CacheConfig configures the lot cache backend.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FilterConfig selects the active filter variant.
type FilterConfig struct {
	Variant      string `yaml:"variant" mapstructure:"variant"`
	VariantsFile string `yaml:"variants_file" mapstructure:"variants_file"`
}

// EnrichConfig configures AI debtor-name enrichment.
type EnrichConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Model            string  `yaml:"model" mapstructure:"model"` // empty selects the provider default
	AnthropicKey     string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	OpenRouterKey    string  `yaml:"openrouter_key" mapstructure:"openrouter_key"`
	OpenRouterURL    string  `yaml:"openrouter_url" mapstructure:"openrouter_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MinConfidence    float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// Timeout returns the per-call enrichment timeout.
func (c EnrichConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// FinanceConfig configures the financial-data and court-case source.
type FinanceConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Years       int    `yaml:"years" mapstructure:"years"`
	// BreakerThreshold consecutive source failures open the breaker for
	// BreakerResetSecs.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// VerifierConfig holds stage weights and verdict thresholds.
type VerifierConfig struct {
	Weights               StageWeights `yaml:"weights" mapstructure:"weights"`
	HighRiskThreshold     float64      `yaml:"high_risk_threshold" mapstructure:"high_risk_threshold"`
	MediumRiskThreshold   float64      `yaml:"medium_risk_threshold" mapstructure:"medium_risk_threshold"`
	LowestConfidenceScore float64      `yaml:"lowest_confidence_score" mapstructure:"lowest_confidence_score"`
}

// StageWeights weights the scored verification stages in the aggregate.
type StageWeights struct {
	Structural float64 `yaml:"structural" mapstructure:"structural"`
	Financial  float64 `yaml:"financial" mapstructure:"financial"`
	Case       float64 `yaml:"case" mapstructure:"case"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	EmptyPageThreshold int `yaml:"empty_page_threshold" mapstructure:"empty_page_threshold"`
	Workers            int `yaml:"workers" mapstructure:"workers"`
}

// MetricsConfig configures run metrics output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BANKROT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("catalog.base_url", "https://tbankrot.ru")
	v.SetDefault("catalog.search_path", "/?swp=any_word&debtor_cat=1&sort=created&sort_order=desc")
	v.SetDefault("catalog.detail_api_url", "")
	v.SetDefault("catalog.max_pages", 10)
	v.SetDefault("catalog.page_timeout_secs", 30)
	v.SetDefault("catalog.detail_timeout_secs", 30)
	v.SetDefault("catalog.requests_per_second", 1.0)
	v.SetDefault("catalog.retries", 2)
	v.SetDefault("catalog.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("catalog.zero_result_marker", "ничего не найдено")
	v.SetDefault("cache.driver", "json")
	v.SetDefault("cache.path", "lots_cache.json")
	v.SetDefault("filter.variant", "debt_window")
	v.SetDefault("enrich.provider", "none")
	v.SetDefault("enrich.openrouter_url", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("enrich.timeout_secs", 30)
	v.SetDefault("enrich.max_attempts", 3)
	v.SetDefault("enrich.initial_backoff_ms", 500)
	v.SetDefault("enrich.min_confidence", 0.5)
	v.SetDefault("finance.timeout_secs", 20)
	v.SetDefault("finance.years", 3)
	v.SetDefault("finance.breaker_threshold", 5)
	v.SetDefault("finance.breaker_reset_secs", 30)
	v.SetDefault("verifier.weights.structural", 0.3)
	v.SetDefault("verifier.weights.financial", 0.4)
	v.SetDefault("verifier.weights.case", 0.3)
	v.SetDefault("verifier.high_risk_threshold", 0.7)
	v.SetDefault("verifier.medium_risk_threshold", 0.4)
	v.SetDefault("verifier.lowest_confidence_score", 0.5)
	v.SetDefault("pipeline.empty_page_threshold", 5)
	v.SetDefault("pipeline.workers", 3)

	// Keys without a useful default still need registering so env overrides
	// reach Unmarshal.
	for _, key := range []string{
		"catalog.cookie", "cache.database_url", "filter.variants_file",
		"enrich.model", "enrich.anthropic_key", "enrich.openrouter_key",
		"finance.base_url", "finance.key", "metrics.textfile",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("catalog.non_interactive", false)

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

// Validate checks the settings a command depends on. Mode is one of
// "run", "verify", or "read" (cache inspection and export).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Cache.Driver {
	case "json", "sqlite":
		if c.Cache.Path == "" {
			errs = append(errs, "cache.path is required")
		}
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			errs = append(errs, "cache.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not one of json, sqlite, postgres", c.Cache.Driver))
	}

	switch mode {
	case "read":
	case "run", "verify":
		errs = append(errs, c.validateVerifier()...)
		if mode == "run" {
			errs = append(errs, c.validateRun()...)
		}
		errs = append(errs, c.validateEnrich()...)
		errs = append(errs, c.validateFinance()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateRun() []string {
	var errs []string
	if c.Catalog.BaseURL == "" {
		errs = append(errs, "catalog.base_url is required")
	}
	if c.Catalog.MaxPages < 1 {
		errs = append(errs, "catalog.max_pages must be >= 1")
	}
	if c.Pipeline.EmptyPageThreshold < 1 {
		errs = append(errs, "pipeline.empty_page_threshold must be >= 1")
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 16 {
		errs = append(errs, "pipeline.workers must be between 1 and 16")
	}
	if c.Filter.Variant == "" {
		errs = append(errs, "filter.variant is required")
	}
	return errs
}

func (c *Config) validateEnrich() []string {
	var errs []string
	switch c.Enrich.Provider {
	case "none":
		return nil
	case "anthropic":
		if c.Enrich.AnthropicKey == "" {
			errs = append(errs, "enrich.anthropic_key is required")
		}
	case "openrouter":
		if c.Enrich.OpenRouterKey == "" {
			errs = append(errs, "enrich.openrouter_key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("enrich.provider %q is not one of anthropic, openrouter, none", c.Enrich.Provider))
	}
	if c.Enrich.MaxAttempts < 1 {
		errs = append(errs, "enrich.max_attempts must be >= 1")
	}
	if c.Enrich.TimeoutSecs < 1 {
		errs = append(errs, "enrich.timeout_secs must be >= 1")
	}
	if c.Enrich.MinConfidence < 0 || c.Enrich.MinConfidence > 1 {
		errs = append(errs, "enrich.min_confidence must be between 0 and 1")
	}
	return errs
}

// validateFinance checks the finance source only when one is configured.
func (c *Config) validateFinance() []string {
	f := c.Finance
	if f.BaseURL == "" {
		return nil
	}
	var errs []string
	if f.TimeoutSecs < 1 {
		errs = append(errs, "finance.timeout_secs must be >= 1")
	}
	if f.Years < 1 {
		errs = append(errs, "finance.years must be >= 1")
	}
	if f.BreakerThreshold < 1 {
		errs = append(errs, "finance.breaker_threshold must be >= 1")
	}
	if f.BreakerResetSecs < 1 {
		errs = append(errs, "finance.breaker_reset_secs must be >= 1")
	}
	return errs
}

func (c *Config) validateVerifier() []string {
	var errs []string
	v := c.Verifier
	w := v.Weights
	if w.Structural < 0 || w.Financial < 0 || w.Case < 0 {
		errs = append(errs, "verifier.weights values must be >= 0")
	} else if w.Structural+w.Financial+w.Case == 0 {
		errs = append(errs, "verifier.weights must not all be zero")
	}
	if v.HighRiskThreshold < 0 || v.HighRiskThreshold > 1 {
		errs = append(errs, "verifier.high_risk_threshold must be between 0 and 1")
	}
	if v.MediumRiskThreshold < 0 || v.MediumRiskThreshold > 1 {
		errs = append(errs, "verifier.medium_risk_threshold must be between 0 and 1")
	}
	if v.MediumRiskThreshold > v.HighRiskThreshold {
		errs = append(errs, "verifier.medium_risk_threshold must not exceed high_risk_threshold")
	}
	if v.LowestConfidenceScore < 0 || v.LowestConfidenceScore > 1 {
		errs = append(errs, "verifier.lowest_confidence_score must be between 0 and 1")
	}
	return errs
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
