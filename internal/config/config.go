package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"budgetagent/internal/core"
	"budgetagent/internal/log"
)

// Data backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
)

// LLM providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderNone       = "none"
)

type Config struct {
	// HTTP Server
	Port            string
	AgentAPIKey     string
	RateLimitRPM    int
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel string

	// Ledger backend
	DataBackend  string
	SeedFile     string
	SeedWatch    bool
	SQLiteDBPath string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	UsersSheet               string
	BudgetsSheet             string
	EntriesSheet             string
	SheetsCacheTTL           time.Duration

	// Periods
	WeekAnchor string

	// Narrative provider
	LLMProvider        string
	OpenRouterAPIKey   string
	OpenRouterBaseURL  string
	OpenRouterModel    string
	OpenRouterSiteURL  string
	OpenRouterSiteName string
	OpenRouterMaxRPM   int
	AugmentTimeout     time.Duration
	AugmentCacheTTL    time.Duration
	AugmentCacheSize   int

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	WorkerIncludeAI bool
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		AgentAPIKey:     getEnv("AGENT_API_KEY", ""),
		RateLimitRPM:    getEnvInt("RATE_LIMIT_RPM", 120),
		CORSOrigins:     getEnvList("CORS_ALLOWED_ORIGINS"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  strings.ToLower(getEnv("DATA_BACKEND", BackendMemory)),
		SeedFile:     getEnv("SEED_FILE", ""),
		SeedWatch:    getEnvBool("SEED_WATCH", true),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budgetagent.db"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		UsersSheet:               getEnv("USERS_SHEET", "Users"),
		BudgetsSheet:             getEnv("BUDGETS_SHEET", "Budgets"),
		EntriesSheet:             getEnv("ENTRIES_SHEET", "Entries"),
		SheetsCacheTTL:           getEnvDuration("SHEETS_CACHE_TTL", 30*time.Second),

		WeekAnchor: getEnv("WEEK_ANCHOR", "monday"),

		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenRouter)),
		OpenRouterAPIKey:   getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:  getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:    getEnv("OPENROUTER_MODEL", "openai/gpt-oss-120b:free"),
		OpenRouterSiteURL:  getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterSiteName: getEnv("OPENROUTER_SITE_NAME", ""),
		OpenRouterMaxRPM:   getEnvInt("OPENROUTER_MAX_RPM", 3),
		AugmentTimeout:     getEnvDuration("AUGMENT_TIMEOUT", 8*time.Second),
		AugmentCacheTTL:    getEnvDuration("AUGMENT_CACHE_TTL", 30*time.Minute),
		AugmentCacheSize:   getEnvInt("AUGMENT_CACHE_SIZE", 512),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "budgetagent"),
		AMQPQueue:       getEnv("AMQP_QUEUE", "budgetagent.entry-created"),
		WorkerIncludeAI: getEnvBool("WORKER_INCLUDE_AI", false),
	}

	return cfg
}

// LLMEnabled reports whether narratives can be requested. A missing key is
// a valid configuration that simply disables them.
func (c *Config) LLMEnabled() bool {
	return c.LLMProvider == ProviderOpenRouter && strings.TrimSpace(c.OpenRouterAPIKey) != ""
}

// Anchor returns the configured week start. Call after Validate.
func (c *Config) Anchor() time.Weekday {
	d, err := core.ParseWeekday(c.WeekAnchor)
	if err != nil {
		return time.Monday
	}
	return d
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.AgentAPIKey) == "" {
		errors = append(errors, "AGENT_API_KEY is required")
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %v", err))
	}

	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}
	if c.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	if _, err := core.ParseWeekday(c.WeekAnchor); err != nil {
		errors = append(errors, fmt.Sprintf("invalid WEEK_ANCHOR: %v", err))
	}

	validBackends := []string{BackendMemory, BackendSheets, BackendSQLite}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendMemory:
		if c.SeedFile != "" {
			if _, err := os.Stat(c.SeedFile); err != nil {
				errors = append(errors, fmt.Sprintf("seed file not readable '%s': %v", c.SeedFile, err))
			}
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if c.GoogleServiceAccountJSON == "" && !hasFile && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for sheets backend")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.SheetsCacheTTL < 0 {
			errors = append(errors, fmt.Sprintf("invalid sheets cache TTL %v: must not be negative", c.SheetsCacheTTL))
		}
	}

	switch c.LLMProvider {
	case ProviderOpenRouter, ProviderNone:
	default:
		errors = append(errors, fmt.Sprintf("invalid LLM provider '%s': must be one of [%s %s]", c.LLMProvider, ProviderOpenRouter, ProviderNone))
	}
	if c.LLMEnabled() {
		if u, err := url.Parse(c.OpenRouterBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid OPENROUTER_BASE_URL '%s'", c.OpenRouterBaseURL))
		}
		if c.OpenRouterMaxRPM < 1 {
			errors = append(errors, fmt.Sprintf("invalid OPENROUTER_MAX_RPM %d: must be at least 1", c.OpenRouterMaxRPM))
		}
		if c.AugmentTimeout < 100*time.Millisecond || c.AugmentTimeout > 2*time.Minute {
			errors = append(errors, fmt.Sprintf("invalid augment timeout %v: must be between 100ms and 2m", c.AugmentTimeout))
		}
		if c.AugmentCacheSize < 1 {
			errors = append(errors, fmt.Sprintf("invalid augment cache size %d: must be at least 1", c.AugmentCacheSize))
		}
		if c.AugmentCacheTTL <= 0 {
			errors = append(errors, fmt.Sprintf("invalid augment cache TTL %v: must be positive", c.AugmentCacheTTL))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker adds the entry worker's requirements to Validate.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AMQPURL == "" {
		return fmt.Errorf("configuration validation failed:\n- AMQP_URL is required for the entry worker")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, ok := ParseFlexibleBool(value); ok {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseFlexibleBool accepts 1/true/yes/y/on and 0/false/no/n/off in any case.
func ParseFlexibleBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off", "":
		return false, true
	default:
		return false, false
	}
}
