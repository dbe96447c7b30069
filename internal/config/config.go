// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/outreach-agent/internal/schemas"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mail transports
const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// Config represents the configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or environment variables.
type Config struct {
	DatabaseURL    string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	RedisURL       string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`       // Optional; enables shared caches and locks
	LogLevel       string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogDevelopment bool   `json:"log_development,omitempty" yaml:"log_development,omitempty"`
	ListenAddr     string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`

	Crawl      CrawlConfig      `json:"crawl" yaml:"crawl"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Mail       MailConfig       `json:"mail" yaml:"mail"`
	Workers    WorkerConfig     `json:"workers" yaml:"workers"`
}

// CrawlConfig tunes company site fetching.
type CrawlConfig struct {
	UserAgent         string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	TimeoutSeconds    int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	DelayMs           int    `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	MaxPages          int    `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
	UseBrowser        bool   `json:"use_browser,omitempty" yaml:"use_browser,omitempty"` // Headless Chrome fallback for script-rendered sites
	PageCacheTTLHours int    `json:"page_cache_ttl_hours,omitempty" yaml:"page_cache_ttl_hours,omitempty"`
}

// ValidationConfig tunes email validation.
type ValidationConfig struct {
	MinQualityScore          int   `json:"min_quality_score,omitempty" yaml:"min_quality_score,omitempty"`
	AssumeValidOnLookupError *bool `json:"assume_valid_on_lookup_error,omitempty" yaml:"assume_valid_on_lookup_error,omitempty"`
	MXCacheTTLMinutes        int   `json:"mx_cache_ttl_minutes,omitempty" yaml:"mx_cache_ttl_minutes,omitempty"`

	SMTPProbe bool   `json:"smtp_probe,omitempty" yaml:"smtp_probe,omitempty"`
	HeloName  string `json:"helo_name,omitempty" yaml:"helo_name,omitempty"`
	ProbeFrom string `json:"probe_from,omitempty" yaml:"probe_from,omitempty"`
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`

	SMTPHost     string `json:"smtp_host,omitempty" yaml:"smtp_host,omitempty"`
	SMTPPort     int    `json:"smtp_port,omitempty" yaml:"smtp_port,omitempty"`
	SMTPUsername string `json:"smtp_username,omitempty" yaml:"smtp_username,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty" yaml:"smtp_password,omitempty"`
	RequireTLS   bool   `json:"require_tls,omitempty" yaml:"require_tls,omitempty"`

	SESRegion           string `json:"ses_region,omitempty" yaml:"ses_region,omitempty"`
	SESConfigurationSet string `json:"ses_configuration_set,omitempty" yaml:"ses_configuration_set,omitempty"`

	SendDelaySeconds *float64 `json:"send_delay_seconds,omitempty" yaml:"send_delay_seconds,omitempty"`
	SendWorkers      int      `json:"send_workers,omitempty" yaml:"send_workers,omitempty"`
}

// WorkerConfig sizes the background scan pool.
type WorkerConfig struct {
	ScanWorkers int `json:"scan_workers,omitempty" yaml:"scan_workers,omitempty"`
	QueueSize   int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	assumeValid := true
	sendDelay := 2.0
	return Config{
		LogLevel:   "info",
		ListenAddr: ":8080",
		Crawl: CrawlConfig{
			TimeoutSeconds:    12,
			DelayMs:           1000,
			MaxPages:          20,
			PageCacheTTLHours: 24,
		},
		Validation: ValidationConfig{
			MinQualityScore:          70,
			AssumeValidOnLookupError: &assumeValid,
			MXCacheTTLMinutes:        360,
		},
		Mail: MailConfig{
			Transport:        TransportSMTP,
			SMTPPort:         587,
			SESRegion:        "us-east-1",
			SendDelaySeconds: &sendDelay,
			SendWorkers:      1,
		},
		Workers: WorkerConfig{
			ScanWorkers: 4,
			QueueSize:   64,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file and checks it against the
// embedded config schema. The format follows the file extension.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
		if err := schemas.ValidateValue(schemas.Config, doc); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("failed to parse config JSON: invalid syntax in %s", path)
		}
		if err := schemas.Validate(schemas.Config, data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// LoadDotEnv loads environment files into the process environment without overriding
// variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables. Unset or malformed numeric
// variables leave the field untouched.
func (c *Config) ApplyEnv(getenv func(string) string) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setInt := func(dst *int, key string) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}

	setString(&c.DatabaseURL, "OUTREACH_DATABASE_URL", "DATABASE_URL")
	setString(&c.RedisURL, "OUTREACH_REDIS_URL", "REDIS_URL")
	setString(&c.LogLevel, "OUTREACH_LOG_LEVEL", "LOG_LEVEL")
	setString(&c.ListenAddr, "OUTREACH_LISTEN_ADDR")
	setString(&c.Mail.Transport, "OUTREACH_MAIL_TRANSPORT")
	setString(&c.Mail.SMTPHost, "SMTP_HOST")
	setInt(&c.Mail.SMTPPort, "SMTP_PORT")
	setString(&c.Mail.SMTPUsername, "SMTP_USERNAME")
	setString(&c.Mail.SMTPPassword, "SMTP_PASSWORD")
	setString(&c.Mail.SESRegion, "OUTREACH_SES_REGION", "AWS_REGION")
	setString(&c.Mail.SESConfigurationSet, "OUTREACH_SES_CONFIGURATION_SET")
}

// Load builds the effective configuration: the optional file, then environment
// overrides, then defaults for anything still unset.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.Getenv)

	merged := cfg.MergeWithDefaults(Default())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config error: unknown log_level %q", c.LogLevel)
	}

	switch c.Mail.Transport {
	case "", TransportSMTP:
		if c.Mail.SMTPPort < 0 || c.Mail.SMTPPort > 65535 {
			return fmt.Errorf("config error: 'mail.smtp_port' out of range")
		}
		if (c.Mail.SMTPUsername == "") != (c.Mail.SMTPPassword == "") {
			return fmt.Errorf("config error: 'mail.smtp_username' and 'mail.smtp_password' must be set together")
		}
	case TransportSES:
		if c.Mail.SESRegion == "" {
			return fmt.Errorf("config error: 'mail.ses_region' is required for the ses transport")
		}
	default:
		return fmt.Errorf("config error: unknown mail transport %q", c.Mail.Transport)
	}

	if c.Mail.SendDelaySeconds != nil && *c.Mail.SendDelaySeconds < 0 {
		return fmt.Errorf("config error: 'mail.send_delay_seconds' must be non-negative")
	}
	if c.Crawl.MaxPages < 0 || c.Crawl.MaxPages > 50 {
		return fmt.Errorf("config error: 'crawl.max_pages' must be between 1 and 50")
	}
	if c.Validation.MinQualityScore < 0 || c.Validation.MinQualityScore > 100 {
		return fmt.Errorf("config error: 'validation.min_quality_score' must be between 0 and 100")
	}
	if c.Workers.ScanWorkers < 0 || c.Workers.QueueSize < 0 {
		return fmt.Errorf("config error: worker sizes must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.RedisURL == "" {
		result.RedisURL = defaults.RedisURL
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.Crawl.UserAgent == "" {
		result.Crawl.UserAgent = defaults.Crawl.UserAgent
	}
	if result.Validation.HeloName == "" {
		result.Validation.HeloName = defaults.Validation.HeloName
	}
	if result.Validation.ProbeFrom == "" {
		result.Validation.ProbeFrom = defaults.Validation.ProbeFrom
	}
	if result.Mail.Transport == "" {
		result.Mail.Transport = defaults.Mail.Transport
	}
	if result.Mail.SMTPHost == "" {
		result.Mail.SMTPHost = defaults.Mail.SMTPHost
	}
	if result.Mail.SESRegion == "" {
		result.Mail.SESRegion = defaults.Mail.SESRegion
	}

	// Int fields: use default if zero
	if result.Crawl.TimeoutSeconds == 0 {
		result.Crawl.TimeoutSeconds = defaults.Crawl.TimeoutSeconds
	}
	if result.Crawl.DelayMs == 0 {
		result.Crawl.DelayMs = defaults.Crawl.DelayMs
	}
	if result.Crawl.MaxPages == 0 {
		result.Crawl.MaxPages = defaults.Crawl.MaxPages
	}
	if result.Crawl.PageCacheTTLHours == 0 {
		result.Crawl.PageCacheTTLHours = defaults.Crawl.PageCacheTTLHours
	}
	if result.Validation.MinQualityScore == 0 {
		result.Validation.MinQualityScore = defaults.Validation.MinQualityScore
	}
	if result.Validation.MXCacheTTLMinutes == 0 {
		result.Validation.MXCacheTTLMinutes = defaults.Validation.MXCacheTTLMinutes
	}
	if result.Mail.SMTPPort == 0 {
		result.Mail.SMTPPort = defaults.Mail.SMTPPort
	}
	if result.Mail.SendWorkers == 0 {
		result.Mail.SendWorkers = defaults.Mail.SendWorkers
	}
	if result.Workers.ScanWorkers == 0 {
		result.Workers.ScanWorkers = defaults.Workers.ScanWorkers
	}
	if result.Workers.QueueSize == 0 {
		result.Workers.QueueSize = defaults.Workers.QueueSize
	}

	// Pointer fields distinguish an explicit zero or false from unset
	if result.Validation.AssumeValidOnLookupError == nil {
		result.Validation.AssumeValidOnLookupError = defaults.Validation.AssumeValidOnLookupError
	}
	if result.Mail.SendDelaySeconds == nil {
		result.Mail.SendDelaySeconds = defaults.Mail.SendDelaySeconds
	}

	// Plain bool fields cannot distinguish unset from false, so they are not merged

	return result
}

// Timeout is the per-request fetch timeout.
func (c CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Delay is the politeness delay between requests to the same site.
func (c CrawlConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// PageCacheTTL is how long fetched pages are reused.
func (c CrawlConfig) PageCacheTTL() time.Duration {
	return time.Duration(c.PageCacheTTLHours) * time.Hour
}

// MXCacheTTL is how long MX lookups are cached.
func (v ValidationConfig) MXCacheTTL() time.Duration {
	return time.Duration(v.MXCacheTTLMinutes) * time.Minute
}

// AssumeValid reports whether unreachable lookups count as a pass. Unset means true.
func (v ValidationConfig) AssumeValid() bool {
	return v.AssumeValidOnLookupError == nil || *v.AssumeValidOnLookupError
}

// SendDelay is the minimum spacing between two sends.
func (m MailConfig) SendDelay() time.Duration {
	if m.SendDelaySeconds == nil {
		return 2 * time.Second
	}
	return time.Duration(*m.SendDelaySeconds * float64(time.Second))
}
