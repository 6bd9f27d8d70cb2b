package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	DataDir        string
	CredentialSalt string
	TokenSecret    string
	AdminSecret    string
	SecureCookies  bool
	StaticDir      string

	Generation GenerationConfig
	RateLimit  RateLimitConfig

	// SQLitePath switches the summary mirror from the JSON file store to
	// SQLite when set.
	SQLitePath string
}

type GenerationConfig struct {
	APIBase    string
	APIKey     string
	Model      string
	RetryDelay time.Duration
}

type RateLimitConfig struct {
	Budget int
	Window time.Duration
}

// Load reads configuration from the environment. In dev a .env file is
// honored.
func Load() Config {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}
	return Config{
		Addr:           getEnv("REFLEKT_ADDR", ":8080"),
		DataDir:        getEnv("REFLEKT_DATA_DIR", "./data"),
		CredentialSalt: getEnv("REFLEKT_CREDENTIAL_SALT", ""),
		TokenSecret:    getEnv("REFLEKT_TOKEN_SECRET", ""),
		AdminSecret:    getEnv("REFLEKT_ADMIN_SECRET", "admin"),
		SecureCookies:  getEnvBool("REFLEKT_SECURE_COOKIES", false),
		StaticDir:      getEnv("REFLEKT_STATIC_DIR", ""),
		Generation: GenerationConfig{
			APIBase:    getEnv("REFLEKT_GEN_API_BASE", ""),
			APIKey:     getEnv("REFLEKT_GEN_API_KEY", ""),
			Model:      getEnv("REFLEKT_GEN_MODEL", ""),
			RetryDelay: getEnvDuration("REFLEKT_GEN_RETRY_DELAY", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Budget: getEnvInt("REFLEKT_RATE_BUDGET", 20),
			Window: getEnvDuration("REFLEKT_RATE_WINDOW", time.Minute),
		},
		SQLitePath: getEnv("REFLEKT_SQLITE_PATH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
