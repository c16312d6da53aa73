// Package config loads the service configuration from environment variables,
// optionally layered over a YAML file named by CONFIG_FILE. Environment
// variables always win over file values.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment is the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment accepts the short names and their long forms.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	default:
		return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", s)
	}
}

// Backend selectors.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StorePebble   = "pebble"
	CacheMemory   = "memory"
	CacheRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes
	ConfigFile        string

	DrugStore    string
	DatabaseURL  string
	DrugSeedFile string // JSON catalogue loaded into the memory store at start-up

	CacheBackend       string
	RedisURL           string
	CacheKeyPrefix     string
	SubstituteCacheTTL time.Duration
	CacheSweepInterval time.Duration

	AuditStore      string
	AuditPebbleDir  string
	KafkaBrokers    string
	KafkaAuditTopic string

	TracingEnabled    bool
	OTLPEndpoint      string
	OTLPInsecure      bool
	TracingSampleRate float64

	RolloverAt          string
	HealthWatchInterval time.Duration
}

// source resolves a key from the environment first, then the optional file.
// File keys are the lower-cased variable names, e.g. database_url.
type source struct {
	k    *koanf.Koanf
	errs []error
}

func (s *source) lookup(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	if s.k != nil {
		if fileKey := strings.ToLower(key); s.k.Exists(fileKey) {
			return s.k.String(fileKey), true
		}
	}
	return "", false
}

func (s *source) str(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (s *source) integer(key string, defaultValue int64) int64 {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be an integer, got: %s", key, value))
		return defaultValue
	}
	return n
}

func (s *source) float(key string, defaultValue float64) float64 {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be a number, got: %s", key, value))
		return defaultValue
	}
	return f
}

func (s *source) boolean(key string, defaultValue bool) bool {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	s.errs = append(s.errs, fmt.Errorf("%s must be a boolean, got: %s", key, value))
	return defaultValue
}

func (s *source) duration(key string, defaultValue time.Duration) time.Duration {
	value, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be a duration such as 1h or 30s, got: %s", key, value))
		return defaultValue
	}
	return d
}

// Load loads and validates configuration from environment variables and the
// optional CONFIG_FILE.
func Load() (*Config, error) {
	src := &source{}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
		src.k = k
	}

	cfg := &Config{
		Port:              src.str("PORT", "8000"),
		Address:           src.str("ADDRESS", "127.0.0.1"),
		LogLevel:          strings.ToLower(src.str("LOG_LEVEL", "info")),
		LogDir:            src.str("LOG_DIR", "logs"),
		LogRetentionWeeks: int(src.integer("LOG_RETENTION_WEEKS", 4)),
		MaxLogFileSize:    src.integer("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    src.integer("MAX_REQUEST_BODY", 10485760),   // 10MB default, CSV imports
		MaxHeaderSize:     src.integer("MAX_HEADER_SIZE", 1048576),     // 1MB default
		ConfigFile:        configFile,

		DrugStore:    strings.ToLower(src.str("DRUG_STORE", StoreMemory)),
		DatabaseURL:  src.str("DATABASE_URL", ""),
		DrugSeedFile: src.str("DRUG_SEED_FILE", ""),

		CacheBackend:       strings.ToLower(src.str("CACHE_BACKEND", CacheMemory)),
		RedisURL:           src.str("REDIS_URL", "redis://localhost:6379/0"),
		CacheKeyPrefix:     src.str("CACHE_KEY_PREFIX", "hoperx:"),
		SubstituteCacheTTL: src.duration("SUBSTITUTE_CACHE_TTL", time.Hour),
		CacheSweepInterval: src.duration("CACHE_SWEEP_INTERVAL", time.Minute),

		AuditStore:      strings.ToLower(src.str("AUDIT_STORE", StoreMemory)),
		AuditPebbleDir:  src.str("AUDIT_PEBBLE_DIR", "data/audit"),
		KafkaBrokers:    src.str("KAFKA_BROKERS", ""),
		KafkaAuditTopic: src.str("KAFKA_AUDIT_TOPIC", "salt-audit"),

		TracingEnabled:    src.boolean("TRACING_ENABLED", false),
		OTLPEndpoint:      src.str("OTLP_ENDPOINT", "localhost:4318"),
		OTLPInsecure:      src.boolean("OTLP_INSECURE", true),
		TracingSampleRate: src.float("TRACING_SAMPLE_RATE", 0.1),

		RolloverAt:          src.str("SCHEDULER_ROLLOVER_AT", "00:05"),
		HealthWatchInterval: src.duration("HEALTH_WATCH_INTERVAL", time.Hour),
	}

	env, envErr := ParseEnvironment(src.str("ENV", "dev"))
	cfg.Env = env

	errs := append(src.errs, envErr)
	if err := validateConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values and reports every problem.
func validateConfig(cfg *Config) error {
	checks := []struct {
		key string
		err error
	}{
		{"PORT", validatePort(cfg.Port)},
		{"ADDRESS", validateAddress(cfg.Address)},
		{"LOG_LEVEL", validateLogLevel(cfg.LogLevel)},
		{"MAX_REQUEST_BODY", validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY")},
		{"MAX_HEADER_SIZE", validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE")},
		{"LOG_RETENTION_WEEKS", validateLogRetentionWeeks(cfg.LogRetentionWeeks)},
		{"MAX_LOG_FILE_SIZE", validateMaxLogFileSize(cfg.MaxLogFileSize)},
		{"DRUG_STORE", validateDrugStore(cfg)},
		{"DRUG_SEED_FILE", validateSeedFile(cfg)},
		{"CACHE_BACKEND", validateCache(cfg)},
		{"SUBSTITUTE_CACHE_TTL", validatePositive(cfg.SubstituteCacheTTL, "SUBSTITUTE_CACHE_TTL")},
		{"CACHE_SWEEP_INTERVAL", validatePositive(cfg.CacheSweepInterval, "CACHE_SWEEP_INTERVAL")},
		{"AUDIT_STORE", validateAuditStore(cfg)},
		{"TRACING_SAMPLE_RATE", validateSampleRate(cfg.TracingSampleRate)},
		{"SCHEDULER_ROLLOVER_AT", validateClockTime(cfg.RolloverAt)},
		{"HEALTH_WATCH_INTERVAL", validatePositive(cfg.HealthWatchInterval, "HEALTH_WATCH_INTERVAL")},
	}

	var errs []error
	for _, c := range checks {
		if c.err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", c.key, c.err))
		}
	}
	return errors.Join(errs...)
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" || address == "0.0.0.0" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	switch logLevel {
	case "debug", "info", "warn", "error":
		return nil
	case "":
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}
	return fmt.Errorf("LOG_LEVEL must be one of: [debug info warn error], got: %s", logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize keeps log files between 1MB and 1GB.
func validateMaxLogFileSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

func validateDrugStore(cfg *Config) error {
	switch cfg.DrugStore {
	case StoreMemory:
		return nil
	case StorePostgres:
		return validateDatabaseURL(cfg.DatabaseURL)
	}
	return fmt.Errorf("DRUG_STORE must be one of: [memory postgres], got: %s", cfg.DrugStore)
}

func validateAuditStore(cfg *Config) error {
	switch cfg.AuditStore {
	case StoreMemory:
		return nil
	case StorePostgres:
		return validateDatabaseURL(cfg.DatabaseURL)
	case StorePebble:
		if cfg.AuditPebbleDir == "" {
			return fmt.Errorf("AUDIT_PEBBLE_DIR is required for the pebble audit store")
		}
		return nil
	}
	return fmt.Errorf("AUDIT_STORE must be one of: [memory postgres pebble], got: %s", cfg.AuditStore)
}

func validateSeedFile(cfg *Config) error {
	if cfg.DrugSeedFile == "" {
		return nil
	}
	if cfg.DrugStore != StoreMemory {
		return fmt.Errorf("DRUG_SEED_FILE is only supported with DRUG_STORE=memory, got: %s", cfg.DrugStore)
	}
	info, err := os.Stat(cfg.DrugSeedFile)
	if err != nil {
		return fmt.Errorf("DRUG_SEED_FILE is not readable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("DRUG_SEED_FILE must be a file, got directory %s", cfg.DrugSeedFile)
	}
	return nil
}

func validateDatabaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL must use the postgres scheme, got: %s", u.Scheme)
	}
	return nil
}

func validateCache(cfg *Config) error {
	switch cfg.CacheBackend {
	case CacheMemory:
		return nil
	case CacheRedis:
		if !strings.HasPrefix(cfg.RedisURL, "redis://") && !strings.HasPrefix(cfg.RedisURL, "rediss://") {
			return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got: %s", cfg.RedisURL)
		}
		return nil
	}
	return fmt.Errorf("CACHE_BACKEND must be one of: [memory redis], got: %s", cfg.CacheBackend)
}

func validatePositive(d time.Duration, configName string) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got: %s", configName, d)
	}
	return nil
}

func validateSampleRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1, got: %g", rate)
	}
	return nil
}

// validateClockTime accepts HH:MM in 24-hour form.
func validateClockTime(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("SCHEDULER_ROLLOVER_AT must be HH:MM, got: %s", s)
	}
	return nil
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT", "ADDRESS", "ENV", "LOG_LEVEL", "LOG_DIR", "LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE", "MAX_REQUEST_BODY", "MAX_HEADER_SIZE", "CONFIG_FILE",
		"DRUG_STORE", "DATABASE_URL", "DRUG_SEED_FILE",
		"CACHE_BACKEND", "REDIS_URL", "CACHE_KEY_PREFIX", "SUBSTITUTE_CACHE_TTL", "CACHE_SWEEP_INTERVAL",
		"AUDIT_STORE", "AUDIT_PEBBLE_DIR", "KAFKA_BROKERS", "KAFKA_AUDIT_TOPIC",
		"TRACING_ENABLED", "OTLP_ENDPOINT", "OTLP_INSECURE", "TRACING_SAMPLE_RATE",
		"SCHEDULER_ROLLOVER_AT", "HEALTH_WATCH_INTERVAL",
	}
}
