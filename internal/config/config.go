package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Rate limit categories
const (
	CategoryDefault  = "default"
	CategoryAuth     = "auth"
	CategoryMutation = "mutation"
	CategorySearch   = "search"
)

// Config holds all configuration values for the application
type Config struct {
	Port        string
	LogLevel    string
	Environment string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	// AllowedOrigins lists browser origins allowed by CORS. Empty echoes
	// any origin.
	AllowedOrigins []string

	// TrustProxyHeaders makes caller identification honour X-Forwarded-For
	// and friends. Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool

	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
	Threat    ThreatConfig
}

// DatabaseConfig sizes the Postgres pool. Zero values use the pool defaults.
type DatabaseConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// RateLimitRule is the fixed window of a single category
type RateLimitRule struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimitConfig configures the fixed window limiter
type RateLimitConfig struct {
	Rules         map[string]RateLimitRule
	SweepInterval time.Duration
}

// CacheConfig configures the bounded lookup cache
type CacheConfig struct {
	MaxSize       int
	TTL           time.Duration
	SweepInterval time.Duration
	LoadTimeout   time.Duration
}

// MetricsConfig configures sample buffers and health thresholds
type MetricsConfig struct {
	MaxSamples    int
	HealthWindow  time.Duration
	SlowRequestMs float64
	SlowQueryMs   float64
	MaxHeapMB     float64
	MaxErrors     int
}

// ThreatConfig configures the advisory threat scanner
type ThreatConfig struct {
	MaxEvents       int
	RepeatThreshold int
	Retention       time.Duration
	SweepInterval   time.Duration
	MaxBodyBytes    int64
	PatternsFile    string
	Patterns        ThreatPatterns
}

// ThreatPatterns are the regex families the scanner runs
type ThreatPatterns struct {
	SQLInjection []string `yaml:"sql_injection"`
	XSS          []string `yaml:"xss"`
}

// DefaultRateLimitRules returns the built-in per-category limits
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		CategoryDefault:  {MaxRequests: 100, Window: 15 * time.Minute},
		CategoryAuth:     {MaxRequests: 20, Window: 15 * time.Minute},
		CategoryMutation: {MaxRequests: 30, Window: 5 * time.Minute},
		CategorySearch:   {MaxRequests: 60, Window: time.Minute},
	}
}

// DefaultThreatPatterns returns the built-in heuristics. They are advisory:
// legitimate text such as "O'Brien -- invoice" can and will match.
func DefaultThreatPatterns() ThreatPatterns {
	return ThreatPatterns{
		SQLInjection: []string{
			`(?i)(%27|')\s*(or|and)\s+[\w'"]+\s*=`,
			`(?i)('|%27)\s*(--|#|/\*)`,
			`(?i)\bunion\b[\s\S]*\bselect\b`,
			`(?i)\b(select\b[\s\S]+\bfrom|insert\s+into|delete\s+from|drop\s+(table|database)|alter\s+table|truncate\s+table)\b`,
			`(?i);\s*(drop|delete|truncate|shutdown|exec)\b`,
			`(?i)\b(exec|execute)\s*(\(|xp_|sp_)`,
			`(?i)\b(sleep|benchmark|pg_sleep|waitfor\s+delay)\s*\(`,
		},
		XSS: []string{
			`(?i)<\s*script\b`,
			`(?i)<\s*/\s*script\s*>`,
			`(?i)<\s*iframe\b`,
			`(?i)javascript\s*:`,
			`(?i)\bon(load|error|click|mouseover|focus|blur|submit|change)\s*=`,
			`(?i)<\s*(object|embed|svg)\b`,
			`(?i)expression\s*\(`,
		},
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Environment:       getEnv("ENVIRONMENT", "production"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		AllowedOrigins:    getListEnv("ALLOWED_ORIGINS"),
		TrustProxyHeaders: getBoolEnv("TRUST_PROXY_HEADERS", true),
		Database: DatabaseConfig{
			MaxConns:        getIntEnv("DB_MAX_CONNS", 8),
			MinConns:        getIntEnv("DB_MIN_CONNS", 0),
			MaxConnLifetime: getDurationEnv("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getDurationEnv("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			ConnectTimeout:  getDurationEnv("DB_CONNECT_TIMEOUT", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			Rules:         loadRateLimitRules(),
			SweepInterval: getDurationEnv("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		},
		Cache: CacheConfig{
			MaxSize:       getIntEnv("CACHE_MAX_SIZE", 1000),
			TTL:           getDurationEnv("CACHE_TTL", 5*time.Minute),
			SweepInterval: getDurationEnv("CACHE_SWEEP_INTERVAL", time.Minute),
			LoadTimeout:   getDurationEnv("CACHE_LOAD_TIMEOUT", 5*time.Second),
		},
		Metrics: MetricsConfig{
			MaxSamples:    getIntEnv("METRICS_MAX_SAMPLES", 1000),
			HealthWindow:  getDurationEnv("METRICS_HEALTH_WINDOW", 5*time.Minute),
			SlowRequestMs: getFloatEnv("METRICS_SLOW_REQUEST_MS", 1000),
			SlowQueryMs:   getFloatEnv("METRICS_SLOW_QUERY_MS", 500),
			MaxHeapMB:     getFloatEnv("METRICS_MAX_HEAP_MB", 512),
			MaxErrors:     getIntEnv("METRICS_MAX_ERRORS", 10),
		},
		Threat: ThreatConfig{
			MaxEvents:       getIntEnv("THREAT_MAX_EVENTS", 1000),
			RepeatThreshold: getIntEnv("THREAT_REPEAT_THRESHOLD", 5),
			Retention:       getDurationEnv("THREAT_RETENTION", 24*time.Hour),
			SweepInterval:   getDurationEnv("THREAT_SWEEP_INTERVAL", 10*time.Minute),
			MaxBodyBytes:    int64(getIntEnv("THREAT_MAX_BODY_BYTES", 1<<20)),
			PatternsFile:    getEnv("THREAT_PATTERNS_FILE", ""),
			Patterns:        DefaultThreatPatterns(),
		},
	}

	if cfg.Threat.PatternsFile != "" {
		patterns, err := LoadThreatPatterns(cfg.Threat.PatternsFile)
		if err != nil {
			return nil, err
		}
		cfg.Threat.Patterns = patterns
	}

	return cfg, nil
}

// LoadThreatPatterns reads a YAML pattern file. A family left empty in the
// file keeps its built-in defaults.
func LoadThreatPatterns(path string) (ThreatPatterns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ThreatPatterns{}, fmt.Errorf("failed to read threat patterns file: %w", err)
	}

	var patterns ThreatPatterns
	if err := yaml.Unmarshal(data, &patterns); err != nil {
		return ThreatPatterns{}, fmt.Errorf("failed to parse threat patterns file: %w", err)
	}

	defaults := DefaultThreatPatterns()
	if len(patterns.SQLInjection) == 0 {
		patterns.SQLInjection = defaults.SQLInjection
	}
	if len(patterns.XSS) == 0 {
		patterns.XSS = defaults.XSS
	}

	return patterns, nil
}

// loadRateLimitRules applies RATE_LIMIT_<CATEGORY>_MAX / _WINDOW overrides
func loadRateLimitRules() map[string]RateLimitRule {
	rules := DefaultRateLimitRules()
	for category, rule := range rules {
		prefix := "RATE_LIMIT_" + strings.ToUpper(category)
		rule.MaxRequests = getIntEnv(prefix+"_MAX", rule.MaxRequests)
		rule.Window = getDurationEnv(prefix+"_WINDOW", rule.Window)
		rules[category] = rule
	}
	return rules
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets a positive integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// getFloatEnv gets a positive float environment variable with a fallback value
func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("90s") or bare milliseconds ("90000")
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// getListEnv splits a comma separated environment variable
func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
