// Package config sources runtime configuration from the environment, with
// .env.local/.env files loaded first and an optional YAML file overlaid on
// top. Every knob the service honors lives here with its default; nothing
// else in the module reads os.Getenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, initialized once at startup and
// passed explicitly to constructors.
type Config struct {
	// Database
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBSSLMode  string `yaml:"db_sslmode"`
	DBMinConns int    `yaml:"db_min_conns"`
	DBMaxConns int    `yaml:"db_max_conns"`

	// LLM provider
	LLMBaseURL        string  `yaml:"llm_base_url"`
	LLMAPIKey         string  `yaml:"llm_api_key"`
	LLMModel          string  `yaml:"llm_model"`
	PlannerModel      string  `yaml:"planner_model"`
	LLMMaxTokens      int     `yaml:"llm_max_tokens"`
	LLMTemperature    float64 `yaml:"llm_temperature"`
	LLMTimeoutSeconds int     `yaml:"llm_timeout_seconds"`
	LLMMaxRetries     int     `yaml:"llm_max_retries"`

	// Agent loop bounds and caps
	MaxSQLRevisions   int `yaml:"max_sql_revisions"`
	MaxModelRevisions int `yaml:"max_model_revisions"`
	MaxSQLRows        int `yaml:"max_sql_rows"`

	// Profile pack
	ProfilePackCacheMinutes int `yaml:"profile_pack_cache_minutes"`

	// Planner / resolver
	DefaultMerchantWindowDays    int `yaml:"default_merchant_window_days"`
	MerchantResolverCacheMinutes int `yaml:"merchant_resolver_cache_minutes"`

	// Modeling
	NumSimulations int `yaml:"num_simulations"`

	// Memory
	MemoryEnabled bool `yaml:"memory_enabled"`

	// Critique hook (off by default)
	CritiqueEnabled bool `yaml:"critique_enabled"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads .env files and the environment and returns a fully defaulted
// Config.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{
		DBHost:     getString("DB_HOST", "localhost"),
		DBPort:     getInt("DB_PORT", 5432),
		DBName:     getString("DB_NAME", "finsight"),
		DBUser:     getString("DB_USER", "finsight"),
		DBPassword: getString("DB_PASSWORD", ""),
		DBSSLMode:  getString("DB_SSLMODE", "disable"),
		DBMinConns: getInt("DB_MIN_CONNS", 1),
		DBMaxConns: getInt("DB_MAX_CONNS", 10),

		LLMBaseURL:        getString("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:         getString("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
		LLMModel:          getString("LLM_MODEL", "gpt-4o-mini"),
		PlannerModel:      getString("PLANNER_MODEL", "gpt-4o"),
		LLMMaxTokens:      getInt("LLM_MAX_TOKENS", 4000),
		LLMTemperature:    getFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutSeconds: getInt("LLM_TIMEOUT_SECONDS", 280),
		LLMMaxRetries:     getInt("LLM_MAX_RETRIES", 2),

		MaxSQLRevisions:   getInt("MAX_SQL_REVISIONS", 1),
		MaxModelRevisions: getInt("MAX_MODEL_REVISIONS", 1),
		MaxSQLRows:        getInt("MAX_SQL_ROWS", 1000),

		ProfilePackCacheMinutes: getInt("PROFILE_PACK_CACHE_MINUTES", 60),

		DefaultMerchantWindowDays:    getInt("DEFAULT_MERCHANT_WINDOW_DAYS", 90),
		MerchantResolverCacheMinutes: getInt("MERCHANT_RESOLVER_CACHE_MINUTES", 60),

		NumSimulations: getInt("NUM_SIMULATIONS", 10000),

		MemoryEnabled: getBool("MEMORY_ENABLED", false),

		CritiqueEnabled: getBool("CRITIQUE_ENABLED", false),

		LogLevel:  getString("LOG_LEVEL", "info"),
		LogFormat: getString("LOG_FORMAT", "simple"),

		ListenAddr: getString("LISTEN_ADDR", ":8080"),
	}

	return cfg, nil
}

// ApplyFile overlays a YAML config file on top of the environment-sourced
// settings. Keys absent from the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.MaxSQLRows <= 0 {
		return fmt.Errorf("MAX_SQL_ROWS must be positive")
	}
	if c.DBMinConns < 1 || c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("invalid connection pool bounds %d-%d", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// DatabaseURL builds the Postgres connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func loadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
