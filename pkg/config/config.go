package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment overrides
const EnvPrefix = "NOTECRAWLER_"

// Config holds all configuration options for the crawler
type Config struct {
	// Platform identity and endpoints
	Platform PlatformConfig `yaml:"platform" json:"platform"`

	// Accounts to crawl, processed in order
	Accounts []AccountConfig `yaml:"accounts" json:"accounts"`

	// Crawl loop settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Request signing
	Signer SignerConfig `yaml:"signer" json:"signer"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlatformConfig holds platform-specific configuration
type PlatformConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url"`
	Origin       string `yaml:"origin" json:"origin"`
	CookieDomain string `yaml:"cookie_domain" json:"cookie_domain"`
	A1           string `yaml:"a1" json:"a1"`
	WebSession   string `yaml:"web_session" json:"web_session"`
	WebID        string `yaml:"web_id" json:"web_id"`
	UserAgent    string `yaml:"user_agent" json:"user_agent"`
	Timezone     string `yaml:"timezone" json:"timezone"`
	Identity     string `yaml:"identity" json:"identity"`
}

// AccountConfig is one crawl target
type AccountConfig struct {
	Name string `yaml:"name" json:"name"`
	ID   string `yaml:"id" json:"id"`
}

// CrawlConfig holds the pagination and batching settings
type CrawlConfig struct {
	BatchSize        int           `yaml:"batch_size" json:"batch_size"`
	MaxPages         int           `yaml:"max_pages" json:"max_pages"`
	PageSize         int           `yaml:"page_size" json:"page_size"`
	ItemDelay        time.Duration `yaml:"item_delay" json:"item_delay"`
	PageDelay        time.Duration `yaml:"page_delay" json:"page_delay"`
	FlushInterval    time.Duration `yaml:"flush_interval" json:"flush_interval"`
	ParallelAccounts int           `yaml:"parallel_accounts" json:"parallel_accounts"`
	RetryIncomplete  bool          `yaml:"retry_incomplete" json:"retry_incomplete"`
	StopOnError      bool          `yaml:"stop_on_error" json:"stop_on_error"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// SignerConfig holds the browser signing configuration
type SignerConfig struct {
	Attempts      int           `yaml:"attempts" json:"attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	SettleDelay   time.Duration `yaml:"settle_delay" json:"settle_delay"`
	Headless      bool          `yaml:"headless" json:"headless"`
	StealthScript string        `yaml:"stealth_script" json:"stealth_script"`
	ChromePath    string        `yaml:"chrome_path" json:"chrome_path"`
}

// OutputConfig holds output file configuration
type OutputConfig struct {
	BaseDirectory  string `yaml:"base_directory" json:"base_directory"`
	CheckpointFile string `yaml:"checkpoint_file" json:"checkpoint_file"`
	ExportWorkbook bool   `yaml:"export_workbook" json:"export_workbook"`
	WorkbookName   string `yaml:"workbook_name" json:"workbook_name"`
	WriteSummary   bool   `yaml:"write_summary" json:"write_summary"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:      "https://edith.xiaohongshu.com",
			Origin:       "https://www.xiaohongshu.com",
			CookieDomain: ".xiaohongshu.com",
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			Timezone:     "Local",
		},
		Crawl: CrawlConfig{
			BatchSize:        10,
			MaxPages:         50,
			PageSize:         30,
			ItemDelay:        400 * time.Millisecond,
			PageDelay:        600 * time.Millisecond,
			FlushInterval:    0,
			ParallelAccounts: 1,
			RetryIncomplete:  false,
			StopOnError:      false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         5,
			MaxRetries:        3,
			RetryDelay:        30 * time.Second,
			RequestTimeout:    30 * time.Second,
		},
		Signer: SignerConfig{
			Attempts:    3,
			RetryDelay:  500 * time.Millisecond,
			Timeout:     45 * time.Second,
			SettleDelay: time.Second,
			Headless:    true,
		},
		Output: OutputConfig{
			BaseDirectory:  "./output",
			CheckpointFile: "processed_ids.json",
			ExportWorkbook: true,
			WorkbookName:   "notes.xlsx",
			WriteSummary:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Identity cookies
	if a1 := os.Getenv(EnvPrefix + "A1"); a1 != "" {
		c.Platform.A1 = a1
	}
	if webSession := os.Getenv(EnvPrefix + "WEB_SESSION"); webSession != "" {
		c.Platform.WebSession = webSession
	}
	if webID := os.Getenv(EnvPrefix + "WEB_ID"); webID != "" {
		c.Platform.WebID = webID
	}
	if userAgent := os.Getenv(EnvPrefix + "USER_AGENT"); userAgent != "" {
		c.Platform.UserAgent = userAgent
	}
	if tz := os.Getenv(EnvPrefix + "TIMEZONE"); tz != "" {
		c.Platform.Timezone = tz
	}

	// Crawl settings
	if err := envInt(EnvPrefix+"BATCH_SIZE", &c.Crawl.BatchSize); err != nil {
		return err
	}
	if err := envInt(EnvPrefix+"MAX_PAGES", &c.Crawl.MaxPages); err != nil {
		return err
	}
	if err := envInt(EnvPrefix+"PARALLEL_ACCOUNTS", &c.Crawl.ParallelAccounts); err != nil {
		return err
	}
	if err := envDuration(EnvPrefix+"ITEM_DELAY", &c.Crawl.ItemDelay); err != nil {
		return err
	}
	if err := envDuration(EnvPrefix+"PAGE_DELAY", &c.Crawl.PageDelay); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "RETRY_INCOMPLETE"); v != "" {
		c.Crawl.RetryIncomplete = strings.ToLower(v) == "true"
	}

	// Rate limiting
	if err := envInt(EnvPrefix+"REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute); err != nil {
		return err
	}
	if err := envDuration(EnvPrefix+"RETRY_DELAY", &c.RateLimit.RetryDelay); err != nil {
		return err
	}

	// Output directory
	if outputDir := os.Getenv(EnvPrefix + "OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if checkpoint := os.Getenv(EnvPrefix + "CHECKPOINT_FILE"); checkpoint != "" {
		c.Output.CheckpointFile = checkpoint
	}

	// Logging level
	if logLevel := os.Getenv(EnvPrefix + "LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

func envInt(key string, target *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if val > 0 {
		*target = val
	}
	return nil
}

func envDuration(key string, target *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = val
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"notecrawler.yaml",
		"notecrawler.yml",
		".notecrawler.yaml",
		filepath.Join(home, ".config", "notecrawler", "config.yaml"),
		filepath.Join(home, ".notecrawler.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform base URL is required"))
	}
	if c.Platform.Origin == "" {
		errs = append(errs, errors.New("platform origin is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q", c.Platform.Timezone))
	}

	// Accounts
	seen := make(map[string]bool)
	for i, acc := range c.Accounts {
		if strings.TrimSpace(acc.Name) == "" {
			errs = append(errs, fmt.Errorf("account %d: name is required", i))
		}
		if strings.TrimSpace(acc.ID) == "" {
			errs = append(errs, fmt.Errorf("account %d: id is required", i))
		}
		if seen[acc.Name] {
			errs = append(errs, fmt.Errorf("account %q listed twice", acc.Name))
		}
		seen[acc.Name] = true
	}

	// Crawl loop
	if c.Crawl.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Crawl.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Crawl.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Crawl.ItemDelay < 0 || c.Crawl.PageDelay < 0 || c.Crawl.FlushInterval < 0 {
		errs = append(errs, errors.New("delays cannot be negative"))
	}
	if c.Crawl.ParallelAccounts <= 0 {
		errs = append(errs, errors.New("parallel accounts must be positive"))
	}

	// Rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.MaxRetries <= 0 {
		errs = append(errs, errors.New("max retries must be positive"))
	}
	if c.RateLimit.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay cannot be negative"))
	}

	// Signer
	if c.Signer.Attempts <= 0 {
		errs = append(errs, errors.New("signer attempts must be positive"))
	}
	if c.Signer.Timeout <= 0 {
		errs = append(errs, errors.New("signer timeout must be positive"))
	}

	// Output
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.CheckpointFile == "" {
		errs = append(errs, errors.New("checkpoint file is required"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateIdentity checks that the identity cookies needed to sign requests
// are present. Commands that never talk to the platform skip it.
func (c *Config) ValidateIdentity() error {
	var errs []error
	if c.Platform.A1 == "" {
		errs = append(errs, errors.New("a1 cookie is required"))
	}
	if c.Platform.WebSession == "" {
		errs = append(errs, errors.New("web_session cookie is required"))
	}
	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("at least one account is required"))
	}
	return errors.Join(errs...)
}

// Location resolves the configured time zone used for publish timestamps
func (c *Config) Location() (*time.Location, error) {
	switch c.Platform.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Platform.Timezone)
	}
}

// CheckpointPath returns the checkpoint file location. Relative names are
// placed inside the output directory.
func (c *Config) CheckpointPath() string {
	if filepath.IsAbs(c.Output.CheckpointFile) {
		return c.Output.CheckpointFile
	}
	return filepath.Join(c.Output.BaseDirectory, c.Output.CheckpointFile)
}

// CookieHeader builds the Cookie header sent with API requests
func (c *Config) CookieHeader() string {
	var parts []string
	if c.Platform.A1 != "" {
		parts = append(parts, "a1="+c.Platform.A1)
	}
	if c.Platform.WebSession != "" {
		parts = append(parts, "web_session="+c.Platform.WebSession)
	}
	if c.Platform.WebID != "" {
		parts = append(parts, "webId="+c.Platform.WebID)
	}
	return strings.Join(parts, "; ")
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if checkpoint, ok := flags["checkpoint"].(string); ok && checkpoint != "" {
		c.Output.CheckpointFile = checkpoint
	}
	if batchSize, ok := flags["batch-size"].(int); ok && batchSize > 0 {
		c.Crawl.BatchSize = batchSize
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Crawl.MaxPages = maxPages
	}
	if parallel, ok := flags["parallel"].(int); ok && parallel > 0 {
		c.Crawl.ParallelAccounts = parallel
	}
	if rpm, ok := flags["requests-per-minute"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if retryIncomplete, ok := flags["retry-incomplete"].(bool); ok {
		c.Crawl.RetryIncomplete = retryIncomplete
	}
	if export, ok := flags["export-workbook"].(bool); ok {
		c.Output.ExportWorkbook = export
	}
	if identity, ok := flags["identity"].(string); ok && identity != "" {
		c.Platform.Identity = identity
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if accounts, ok := flags["accounts"].([]string); ok && len(accounts) > 0 {
		c.Accounts = filterAccounts(c.Accounts, accounts)
	}
}

// filterAccounts keeps the configured accounts whose name or id is listed
func filterAccounts(all []AccountConfig, wanted []string) []AccountConfig {
	keep := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		keep[strings.TrimSpace(w)] = true
	}
	var out []AccountConfig
	for _, acc := range all {
		if keep[acc.Name] || keep[acc.ID] {
			out = append(out, acc)
		}
	}
	return out
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".notecrawler.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
