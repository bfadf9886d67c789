package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // schedule matching must not depend on the host zoneinfo

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Database   Database   `mapstructure:"database"`
	Server     Server     `mapstructure:"server"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Generation Generation `mapstructure:"generation"`
	Images     Images     `mapstructure:"images"`
	Logging    Logging    `mapstructure:"logging"`
	PostHog    PostHog    `mapstructure:"posthog"`
}

// App holds general application configuration
type App struct {
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// IsProduction reports whether internal details must be hidden from API clients.
func (a App) IsProduction() bool {
	return strings.EqualFold(a.Environment, "production")
}

// AI holds LLM and image provider configuration
type AI struct {
	Gemini    GeminiConfig      `mapstructure:"gemini"`
	OpenAI    OpenAIConfig      `mapstructure:"openai"`
	Routes    map[string]string `mapstructure:"routes"` // pipeline step -> provider name
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	ImageModel string        `mapstructure:"image_model"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig throttles calls per provider
type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"` // 0 disables throttling
	Burst             int     `mapstructure:"burst"`
}

// Database holds document store configuration
type Database struct {
	Driver       string        `mapstructure:"driver"` // mongo or memory
	URI          string        `mapstructure:"uri"`
	Name         string        `mapstructure:"name"`
	FixturesPath string        `mapstructure:"fixtures_path"` // seed file for the memory driver
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminAPIKey  string        `mapstructure:"admin_api_key"`
	CORS         CORS          `mapstructure:"cors"`
}

// CORS holds cross-origin settings for the API
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Scheduler holds configuration for the time-driven trigger
type Scheduler struct {
	Timezone    string `mapstructure:"timezone"`
	CronSecret  string `mapstructure:"cron_secret"`
	Concurrency int    `mapstructure:"concurrency"`

	location *time.Location
}

// Location returns the resolved scheduler timezone.
func (s Scheduler) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// Generation holds pipeline budgets
type Generation struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	StepTimeout     time.Duration `mapstructure:"step_timeout"`
	ThemeRetries    int           `mapstructure:"theme_retries"`
	ThemeCandidates int           `mapstructure:"theme_candidates"`
}

// Images holds the local store for images returned as base64 payloads
type Images struct {
	Directory     string `mapstructure:"directory"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// Logging holds logging configuration
type Logging struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// PostHog holds product analytics configuration
type PostHog struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Host    string `mapstructure:"host"`
}

var (
	globalConfig *Config
	mu           sync.Mutex
)

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".mediacms")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	mu.Lock()
	cfg := globalConfig
	mu.Unlock()
	if cfg != nil {
		return cfg
	}

	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}

// Reset drops the cached configuration so the next Load re-reads every source.
func Reset() {
	mu.Lock()
	globalConfig = nil
	mu.Unlock()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	v.SetDefault("ai.gemini.max_tokens", 8192)
	v.SetDefault("ai.gemini.temperature", 0.7)
	v.SetDefault("ai.openai.model", "gpt-4o")
	v.SetDefault("ai.openai.image_model", "gpt-image-1")
	v.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.timeout", "120s")
	v.SetDefault("ai.routes", map[string]string{
		"themes":   "openai",
		"outline":  "openai",
		"section":  "gemini",
		"image":    "openai",
		"alt_text": "gemini",
		"metadata": "gemini",
	})
	v.SetDefault("ai.rate_limit.requests_per_minute", 60)
	v.SetDefault("ai.rate_limit.burst", 5)

	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "mediacms")
	v.SetDefault("database.timeout", "10s")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "6m")
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})

	v.SetDefault("scheduler.timezone", "Asia/Tokyo")
	v.SetDefault("scheduler.concurrency", 4)

	v.SetDefault("generation.timeout", "5m")
	v.SetDefault("generation.step_timeout", "90s")
	v.SetDefault("generation.theme_retries", 1)
	v.SetDefault("generation.theme_candidates", 5)

	v.SetDefault("images.directory", "generated-images")
	v.SetDefault("images.public_base_url", "/images")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "logs/mediacms.log")

	v.SetDefault("posthog.enabled", false)
	v.SetDefault("posthog.host", "https://us.i.posthog.com")
}

// bindEnvironmentVariables maps the conventional secret names onto config keys
func bindEnvironmentVariables(v *viper.Viper) {
	bindEnvKeys(v, "ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
	bindEnvKeys(v, "ai.openai.api_key", []string{
		"OPENAI_API_KEY",
	})
	bindEnvKeys(v, "scheduler.cron_secret", []string{
		"CRON_SECRET",
	})
	bindEnvKeys(v, "server.admin_api_key", []string{
		"ADMIN_API_KEY",
	})
	bindEnvKeys(v, "database.uri", []string{
		"MONGODB_URI",
		"MONGO_URL",
	})
	bindEnvKeys(v, "posthog.api_key", []string{
		"POSTHOG_API_KEY",
	})
	bindEnvKeys(v, "app.environment", []string{
		"APP_ENV",
		"MEDIACMS_ENV",
	})
	bindEnvKeys(v, "server.port", []string{
		"PORT",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

func postProcessConfig(config *Config) error {
	if config.Images.Directory != "" {
		config.Images.Directory = expandPath(config.Images.Directory)
	}
	if config.Logging.FilePath != "" {
		config.Logging.FilePath = expandPath(config.Logging.FilePath)
	}
	if config.Database.FixturesPath != "" {
		config.Database.FixturesPath = expandPath(config.Database.FixturesPath)
	}

	loc, err := time.LoadLocation(config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("invalid scheduler.timezone %q: %w", config.Scheduler.Timezone, err)
	}
	config.Scheduler.location = loc

	if config.Scheduler.Concurrency <= 0 {
		config.Scheduler.Concurrency = 1
	}
	if config.Generation.ThemeRetries < 0 {
		config.Generation.ThemeRetries = 0
	}

	normalized := make(map[string]string, len(config.AI.Routes))
	for step, provider := range config.AI.Routes {
		normalized[strings.ToLower(step)] = strings.ToLower(strings.TrimSpace(provider))
	}
	config.AI.Routes = normalized

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures the loaded values are usable
func validateConfig(config *Config) error {
	var errors []string

	switch config.Database.Driver {
	case "mongo":
		if config.Database.URI == "" {
			errors = append(errors, "MongoDB URI is required. Set MONGODB_URI or database.uri")
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("Unknown database driver: %s. Supported: mongo, memory", config.Database.Driver))
	}

	for step, provider := range config.AI.Routes {
		if provider != "gemini" && provider != "openai" {
			errors = append(errors, fmt.Sprintf("Unknown provider %q for step %q. Supported: gemini, openai", provider, step))
		}
	}

	if config.Generation.Timeout <= 0 {
		errors = append(errors, "generation.timeout must be positive")
	}
	if config.Generation.StepTimeout <= 0 || config.Generation.StepTimeout > config.Generation.Timeout {
		errors = append(errors, "generation.step_timeout must be positive and not exceed generation.timeout")
	}

	if config.PostHog.Enabled && config.PostHog.APIKey == "" {
		errors = append(errors, "PostHog is enabled but POSTHOG_API_KEY is not set")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateProviders checks that every provider referenced by a route has credentials.
func (c *Config) ValidateProviders() error {
	var missing []string
	used := map[string]bool{}
	for _, provider := range c.AI.Routes {
		used[provider] = true
	}
	if used["gemini"] && c.AI.Gemini.APIKey == "" {
		missing = append(missing, "Gemini API key is required. Set GEMINI_API_KEY or ai.gemini.api_key")
	}
	if used["openai"] && c.AI.OpenAI.APIKey == "" {
		missing = append(missing, "OpenAI API key is required. Set OPENAI_API_KEY or ai.openai.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(missing, "\n- "))
	}
	return nil
}

// Address returns the listen address for the HTTP server.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Convenience getters for commonly used configuration values
func GetApp() App               { return Get().App }
func GetAI() AI                 { return Get().AI }
func GetDatabase() Database     { return Get().Database }
func GetServer() Server         { return Get().Server }
func GetScheduler() Scheduler   { return Get().Scheduler }
func GetGeneration() Generation { return Get().Generation }
func GetLogging() Logging       { return Get().Logging }
func GetPostHog() PostHog       { return Get().PostHog }
func IsDebugMode() bool         { return Get().App.Debug }
