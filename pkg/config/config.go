package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for igpull
type Config struct {
	Client     ClientConfig     `yaml:"client" json:"client"`
	Proxy      ProxyConfig      `yaml:"proxy" json:"proxy"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Behavior   BehaviorConfig   `yaml:"behavior" json:"behavior"`
	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`
	Download   DownloadConfig   `yaml:"download" json:"download"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ClientConfig holds API client settings
type ClientConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	CookiesFile string        `yaml:"cookies" json:"cookies"`
}

// ProxyConfig holds egress proxy settings. Proxy wins over ProxyFile.
type ProxyConfig struct {
	Proxy       string `yaml:"proxy" json:"proxy"`
	ProxyFile   string `yaml:"proxy_file" json:"proxy_file"`
	RotateEvery int    `yaml:"rotate_every" json:"rotate_every"`
}

// RateLimitConfig holds the sliding window and jitter settings
type RateLimitConfig struct {
	Window        time.Duration `yaml:"window" json:"window"`
	MaxRequests   int           `yaml:"max_requests" json:"max_requests"`
	SafetyMargin  time.Duration `yaml:"safety_margin" json:"safety_margin"`
	Lambda        float64       `yaml:"lambda" json:"lambda"`
	MinDelay      time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
	ProxyMinDelay time.Duration `yaml:"proxy_min_delay" json:"proxy_min_delay"`
	ProxyMaxDelay time.Duration `yaml:"proxy_max_delay" json:"proxy_max_delay"`
}

// DurationRange is an inclusive [Min, Max] range
type DurationRange struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// BehaviorConfig holds the human pacing ranges
type BehaviorConfig struct {
	Page            DurationRange `yaml:"page" json:"page"`
	Carousel        DurationRange `yaml:"carousel" json:"carousel"`
	HighlightTray   DurationRange `yaml:"highlight_tray" json:"highlight_tray"`
	HighlightSwitch DurationRange `yaml:"highlight_switch" json:"highlight_switch"`
	Rest            DurationRange `yaml:"rest" json:"rest"`
	RestEveryMin    int           `yaml:"rest_every_min" json:"rest_every_min"`
	RestEveryMax    int           `yaml:"rest_every_max" json:"rest_every_max"`
}

// PaginationConfig holds page fetching settings
type PaginationConfig struct {
	PageSize    int           `yaml:"page_size" json:"page_size"`
	PageRetries int           `yaml:"page_retries" json:"page_retries"`
	PageBackoff time.Duration `yaml:"page_backoff" json:"page_backoff"`
}

// DownloadConfig holds media download settings
type DownloadConfig struct {
	BatchSize               int           `yaml:"batch_size" json:"batch_size"`
	MaxConnectionsPerServer int           `yaml:"max_connections_per_server" json:"max_connections_per_server"`
	MaxConcurrent           int           `yaml:"max_concurrent" json:"max_concurrent"`
	Aria2Path               string        `yaml:"aria2_path" json:"aria2_path"`
	DisableAria2            bool          `yaml:"disable_aria2" json:"disable_aria2"`
	Timeout                 time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts           int           `yaml:"retry_attempts" json:"retry_attempts"`
	RequestsPerSecond       float64       `yaml:"requests_per_second" json:"requests_per_second"`
	SkipExisting            bool          `yaml:"skip_existing" json:"skip_existing"`
}

// OutputConfig holds output directory and archive configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	Archive       string `yaml:"archive" json:"archive"`
	AutoArchive   bool   `yaml:"auto_archive" json:"auto_archive"`
	ArchiveDir    string `yaml:"archive_dir" json:"archive_dir"`
	SaveMetadata  bool   `yaml:"save_metadata" json:"save_metadata"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Timeout:     30 * time.Second,
			UserAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxAttempts: 3,
		},
		Proxy: ProxyConfig{
			RotateEvery: 20,
		},
		RateLimit: RateLimitConfig{
			Window:        660 * time.Second,
			MaxRequests:   75,
			SafetyMargin:  6 * time.Second,
			Lambda:        0.3,
			MinDelay:      500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			ProxyMinDelay: 100 * time.Millisecond,
			ProxyMaxDelay: 300 * time.Millisecond,
		},
		Behavior: BehaviorConfig{
			Page:            DurationRange{Min: 1 * time.Second, Max: 3 * time.Second},
			Carousel:        DurationRange{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond},
			HighlightTray:   DurationRange{Min: 1500 * time.Millisecond, Max: 4 * time.Second},
			HighlightSwitch: DurationRange{Min: 2 * time.Second, Max: 5 * time.Second},
			Rest:            DurationRange{Min: 10 * time.Second, Max: 30 * time.Second},
			RestEveryMin:    50,
			RestEveryMax:    80,
		},
		Pagination: PaginationConfig{
			PageSize:    12,
			PageRetries: 3,
			PageBackoff: 30 * time.Second,
		},
		Download: DownloadConfig{
			BatchSize:               50,
			MaxConnectionsPerServer: 4,
			MaxConcurrent:           16,
			Aria2Path:               "aria2c",
			Timeout:                 60 * time.Second,
			RetryAttempts:           3,
			RequestsPerSecond:       8,
			SkipExisting:            true,
		},
		Output: OutputConfig{
			BaseDirectory: ".",
			AutoArchive:   false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from IGPULL_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("IGPULL_PROXY"); v != "" {
		c.Proxy.Proxy = v
	}
	if v := os.Getenv("IGPULL_PROXY_FILE"); v != "" {
		c.Proxy.ProxyFile = v
	}
	if v := os.Getenv("IGPULL_COOKIES"); v != "" {
		c.Client.CookiesFile = v
	}
	if v := os.Getenv("IGPULL_USER_AGENT"); v != "" {
		c.Client.UserAgent = v
	}
	if v := os.Getenv("IGPULL_OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv("IGPULL_ARCHIVE_DIR"); v != "" {
		c.Output.ArchiveDir = v
	}
	if v := os.Getenv("IGPULL_AUTO_ARCHIVE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGPULL_AUTO_ARCHIVE: %w", err))
		} else {
			c.Output.AutoArchive = b
		}
	}
	if v := os.Getenv("IGPULL_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGPULL_BATCH_SIZE: %w", err))
		} else {
			c.Download.BatchSize = n
		}
	}
	if v := os.Getenv("IGPULL_ARIA2_PATH"); v != "" {
		c.Download.Aria2Path = v
	}
	if v := os.Getenv("IGPULL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IGPULL_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	c.expandPaths()
	return nil
}

// FindConfigFile searches for a config file in the standard locations
func FindConfigFile() string {
	locations := []string{
		".igpull.yaml",
		".igpull.yml",
		DefaultConfigPath(),
		filepath.Join(os.Getenv("HOME"), ".igpull.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// DefaultConfigPath returns ~/.config/igpull/config.yaml (XDG aware)
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "igpull", "config.yaml")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "igpull", "config.yaml")
}

// expandPaths resolves a leading ~ in every path-valued setting
func (c *Config) expandPaths() {
	c.Client.CookiesFile = ExpandHome(c.Client.CookiesFile)
	c.Proxy.ProxyFile = ExpandHome(c.Proxy.ProxyFile)
	c.Output.BaseDirectory = ExpandHome(c.Output.BaseDirectory)
	c.Output.Archive = ExpandHome(c.Output.Archive)
	c.Output.ArchiveDir = ExpandHome(c.Output.ArchiveDir)
	c.Logging.File = ExpandHome(c.Logging.File)
}

// ExpandHome replaces a leading "~/" with the user's home directory
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client timeout must be positive"))
	}
	if c.Client.MaxAttempts <= 0 {
		errs = append(errs, errors.New("client max attempts must be positive"))
	}

	if c.Proxy.RotateEvery <= 0 {
		errs = append(errs, errors.New("proxy rotate_every must be positive"))
	}

	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("rate limit max requests must be positive"))
	}
	if c.RateLimit.Lambda <= 0 {
		errs = append(errs, errors.New("rate limit lambda must be positive"))
	}
	if c.RateLimit.MinDelay > c.RateLimit.MaxDelay {
		errs = append(errs, errors.New("rate limit min delay exceeds max delay"))
	}
	if c.RateLimit.ProxyMinDelay > c.RateLimit.ProxyMaxDelay {
		errs = append(errs, errors.New("rate limit proxy min delay exceeds proxy max delay"))
	}

	for name, r := range map[string]DurationRange{
		"page":             c.Behavior.Page,
		"carousel":         c.Behavior.Carousel,
		"highlight_tray":   c.Behavior.HighlightTray,
		"highlight_switch": c.Behavior.HighlightSwitch,
		"rest":             c.Behavior.Rest,
	} {
		if r.Min < 0 || r.Min > r.Max {
			errs = append(errs, fmt.Errorf("behavior %s range is invalid", name))
		}
	}
	if c.Behavior.RestEveryMin <= 0 || c.Behavior.RestEveryMin > c.Behavior.RestEveryMax {
		errs = append(errs, errors.New("behavior rest_every range is invalid"))
	}

	if c.Pagination.PageSize <= 0 {
		errs = append(errs, errors.New("pagination page size must be positive"))
	}
	if c.Pagination.PageRetries <= 0 {
		errs = append(errs, errors.New("pagination page retries must be positive"))
	}

	if c.Download.BatchSize <= 0 {
		errs = append(errs, errors.New("download batch size must be positive"))
	}
	if c.Download.MaxConnectionsPerServer <= 0 || c.Download.MaxConnectionsPerServer > 16 {
		errs = append(errs, errors.New("download max connections per server must be between 1 and 16"))
	}
	if c.Download.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("download max concurrent must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts <= 0 {
		errs = append(errs, errors.New("download retry attempts must be positive"))
	}
	if c.Download.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("download requests per second must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// UseCookies reports whether authenticated endpoints should be used
func (c *Config) UseCookies() bool {
	return c.Client.CookiesFile != ""
}

// ArchivePath returns the dedup ledger path for username, or "" when no
// ledger should be used. An explicit archive file applies to every profile.
func (c *Config) ArchivePath(username string) string {
	if c.Output.Archive != "" {
		return c.Output.Archive
	}
	if !c.Output.AutoArchive {
		return ""
	}
	dir := c.Output.ArchiveDir
	if dir == "" {
		dir = c.Output.BaseDirectory
	}
	return filepath.Join(dir, username+".txt")
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in flags override the current values.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["archive"].(string); ok && v != "" {
		c.Output.Archive = v
	}
	if v, ok := flags["proxy"].(string); ok && v != "" {
		c.Proxy.Proxy = v
	}
	if v, ok := flags["proxy-file"].(string); ok && v != "" {
		c.Proxy.ProxyFile = v
	}
	if v, ok := flags["cookies"].(string); ok && v != "" {
		c.Client.CookiesFile = v
	}
	if v, ok := flags["skip-existing"].(bool); ok {
		c.Download.SkipExisting = v
	}
	if v, ok := flags["no-aria2"].(bool); ok && v {
		c.Download.DisableAria2 = true
	}
	if v, ok := flags["metadata"].(bool); ok && v {
		c.Output.SaveMetadata = true
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.Logging.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igpull.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)
	config.expandPaths()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
