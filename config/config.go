package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/foodlens/backend/internal/usecase"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Matching MatchingConfig `mapstructure:"matching"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds the SQLite database settings
type DatabaseConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// MatchingConfig holds food name matching thresholds and normalization settings
type MatchingConfig struct {
	FallbackMinScore    int                 `mapstructure:"fallback_min_score"`
	PopularityMinUsage  int                 `mapstructure:"popularity_min_usage"`
	MaxCandidates       int                 `mapstructure:"max_candidates"`
	ResolverCandidates  int                 `mapstructure:"resolver_candidates"`
	CategorySuffix      string              `mapstructure:"category_suffix"`
	Delimiter           string              `mapstructure:"delimiter"`
	GenericPlaceholders []string            `mapstructure:"generic_placeholders"`
	EnableDebugLogging  bool                `mapstructure:"debug_logging"`
	Weights             usecase.RuleWeights `mapstructure:"weights"`
}

// ResolverConfig holds the similarity resolver (chat model) configuration
type ResolverConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from an optional .env file, environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/foodlens/")

	// FOODLENS_MATCHING_FALLBACK_MIN_SCORE overrides matching.fallback_min_score
	v.SetEnvPrefix("FOODLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads variables from ./.env without overriding ones already set.
// A missing file is not an error.
func loadEnvFile() error {
	err := godotenv.Load(".env")
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error reading .env: %w", err)
}

// setDefaults sets default configuration values.
// Every key gets a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database defaults
	v.SetDefault("database.path", "data/foodlens.db")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)

	// Matching defaults
	v.SetDefault("matching.fallback_min_score", 20)
	v.SetDefault("matching.popularity_min_usage", 3)
	v.SetDefault("matching.max_candidates", 50)
	v.SetDefault("matching.resolver_candidates", 20)
	v.SetDefault("matching.category_suffix", "류")
	v.SetDefault("matching.delimiter", "_")
	v.SetDefault("matching.generic_placeholders", []string{"도넛", "해당없음", "기타", "일반", "없음"})
	v.SetDefault("matching.debug_logging", false)

	// Scoring rule weights, FOODLENS_MATCHING_WEIGHTS_EXACT_NAME etc.
	w := usecase.DefaultRuleWeights()
	v.SetDefault("matching.weights.exact_name", w.ExactName)
	v.SetDefault("matching.weights.compound_head", w.CompoundHead)
	v.SetDefault("matching.weights.compound_tail", w.CompoundTail)
	v.SetDefault("matching.weights.representative_name", w.RepresentativeName)
	v.SetDefault("matching.weights.category1", w.Category1)
	v.SetDefault("matching.weights.category2", w.Category2)
	v.SetDefault("matching.weights.generic_tail_bypass", w.GenericTailBypass)
	v.SetDefault("matching.weights.partial_name", w.PartialName)
	v.SetDefault("matching.weights.ingredient_category2", w.IngredientCategory2)
	v.SetDefault("matching.weights.ingredient_tail", w.IngredientTail)
	v.SetDefault("matching.weights.ingredient_name", w.IngredientName)
	v.SetDefault("matching.weights.ingredient_representative", w.IngredientRepresentative)

	// Resolver defaults
	v.SetDefault("resolver.enabled", false)
	v.SetDefault("resolver.api_key", "")
	v.SetDefault("resolver.base_url", "https://api.openai.com/v1")
	v.SetDefault("resolver.model", "gpt-4o-mini")
	v.SetDefault("resolver.timeout", "5s")
	v.SetDefault("resolver.rate_per_minute", 60)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("log.level", "info")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Resolver.Enabled && config.Resolver.APIKey == "" {
		return fmt.Errorf("resolver API key is required when the resolver is enabled (set FOODLENS_RESOLVER_API_KEY)")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	m := config.Matching
	if m.FallbackMinScore <= 0 || m.PopularityMinUsage <= 0 || m.MaxCandidates <= 0 || m.ResolverCandidates <= 0 {
		return fmt.Errorf("matching thresholds must be positive")
	}

	if err := validateWeights(m.Weights); err != nil {
		return err
	}

	if config.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver timeout must be positive, got: %s", config.Resolver.Timeout)
	}

	if config.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	return nil
}

func validateWeights(w usecase.RuleWeights) error {
	for name, points := range map[string]int{
		"exact_name":                w.ExactName,
		"compound_head":             w.CompoundHead,
		"compound_tail":             w.CompoundTail,
		"representative_name":       w.RepresentativeName,
		"category1":                 w.Category1,
		"category2":                 w.Category2,
		"generic_tail_bypass":       w.GenericTailBypass,
		"partial_name":              w.PartialName,
		"ingredient_category2":      w.IngredientCategory2,
		"ingredient_tail":           w.IngredientTail,
		"ingredient_name":           w.IngredientName,
		"ingredient_representative": w.IngredientRepresentative,
	} {
		if points < 0 {
			return fmt.Errorf("matching weight %s must not be negative, got: %d", name, points)
		}
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
