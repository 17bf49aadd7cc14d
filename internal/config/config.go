// Package config loads settings for the browser suite and the stand-in
// mlocid server. Suite settings come from an optional YAML file named by
// MLOCID_E2E_CONFIG, overridden by MLOCID_E2E_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/mlocid-e2e/internal/browser"
	"github.com/kuitang/mlocid-e2e/internal/ratelimit"
	"github.com/kuitang/mlocid-e2e/internal/wait"
)

const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"

	defaultRegion = "auto"
)

// Suite holds the browser suite configuration.
type Suite struct {
	// BaseURL of the application under test; empty starts the stand-in in-process.
	BaseURL string `yaml:"base_url"`
	Driver  string `yaml:"driver"`

	Headless     bool          `yaml:"headless"`
	ImplicitWait time.Duration `yaml:"implicit_wait"`
	ExplicitWait time.Duration `yaml:"explicit_wait"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay"`

	Password       string `yaml:"password"`
	UsernamePrefix string `yaml:"username_prefix"`

	SkipInstall    bool   `yaml:"skip_install"`
	ChromePath     string `yaml:"chrome_path"`
	IsolateCookies bool   `yaml:"isolate_cookies"`

	// Failure artifacts
	ArtifactDir    string `yaml:"artifact_dir"`
	ArtifactBucket string `yaml:"artifact_bucket"`
	AWSEndpointS3  string `yaml:"aws_endpoint_url_s3"` // AWS_ENDPOINT_URL_S3
	AWSRegion      string `yaml:"aws_region"`          // AWS_REGION
	AWSAccessKeyID string `yaml:"-"`                   // AWS_ACCESS_KEY_ID
	AWSSecretKey   string `yaml:"-"`                   // AWS_SECRET_ACCESS_KEY

	LogLevel string `yaml:"log_level"`
}

// DefaultSuite returns the suite defaults.
func DefaultSuite() Suite {
	return Suite{
		Driver:         DriverPlaywright,
		Headless:       true,
		ImplicitWait:   browser.DefaultImplicitWait,
		ExplicitWait:   wait.DefaultTimeout,
		PollInterval:   wait.DefaultInterval,
		SettleDelay:    time.Second,
		Password:       "testpass123",
		UsernamePrefix: "testuser_",
		AWSRegion:      defaultRegion,
		LogLevel:       "info",
	}
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadSuite builds the suite configuration: defaults, then the YAML file
// named by MLOCID_E2E_CONFIG, then environment variables.
func LoadSuite() (*Suite, error) {
	cfg := DefaultSuite()

	if path := strings.TrimSpace(os.Getenv("MLOCID_E2E_CONFIG")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	env := &envReader{}
	cfg.BaseURL = strings.TrimRight(env.str("MLOCID_BASE_URL", cfg.BaseURL), "/")
	cfg.Driver = strings.ToLower(env.str("MLOCID_E2E_DRIVER", cfg.Driver))
	cfg.Headless = env.boolean("MLOCID_E2E_HEADLESS", cfg.Headless)
	cfg.ImplicitWait = env.duration("MLOCID_E2E_IMPLICIT_WAIT", cfg.ImplicitWait)
	cfg.ExplicitWait = env.duration("MLOCID_E2E_EXPLICIT_WAIT", cfg.ExplicitWait)
	cfg.PollInterval = env.duration("MLOCID_E2E_POLL_INTERVAL", cfg.PollInterval)
	cfg.SettleDelay = env.duration("MLOCID_E2E_SETTLE_DELAY", cfg.SettleDelay)
	cfg.Password = env.str("MLOCID_E2E_PASSWORD", cfg.Password)
	cfg.UsernamePrefix = env.str("MLOCID_E2E_USERNAME_PREFIX", cfg.UsernamePrefix)
	cfg.SkipInstall = env.boolean("MLOCID_E2E_SKIP_INSTALL", cfg.SkipInstall)
	cfg.ChromePath = env.str("MLOCID_E2E_CHROME_PATH", cfg.ChromePath)
	cfg.IsolateCookies = env.boolean("MLOCID_E2E_ISOLATE_COOKIES", cfg.IsolateCookies)
	cfg.ArtifactDir = env.str("MLOCID_E2E_ARTIFACT_DIR", cfg.ArtifactDir)
	cfg.ArtifactBucket = env.str("MLOCID_E2E_ARTIFACT_BUCKET", cfg.ArtifactBucket)
	cfg.AWSEndpointS3 = env.str("AWS_ENDPOINT_URL_S3", cfg.AWSEndpointS3)
	cfg.AWSRegion = env.str("AWS_REGION", cfg.AWSRegion)
	cfg.AWSAccessKeyID = env.str("AWS_ACCESS_KEY_ID", cfg.AWSAccessKeyID)
	cfg.AWSSecretKey = env.str("AWS_SECRET_ACCESS_KEY", cfg.AWSSecretKey)
	cfg.LogLevel = env.str("MLOCID_E2E_LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			validationErr.Errors = append(env.errs, validationErr.Errors...)
			return nil, validationErr
		}
		return nil, err
	}
	if len(env.errs) > 0 {
		return nil, &ValidationError{Errors: env.errs}
	}
	return &cfg, nil
}

func (c *Suite) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read suite config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse suite config %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Suite) Validate() error {
	var errs []string

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("MLOCID_BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL))
		}
	}
	switch c.Driver {
	case DriverPlaywright, DriverChromedp:
	default:
		errs = append(errs, fmt.Sprintf("MLOCID_E2E_DRIVER must be %q or %q, got %q", DriverPlaywright, DriverChromedp, c.Driver))
	}
	if c.ImplicitWait <= 0 {
		errs = append(errs, "MLOCID_E2E_IMPLICIT_WAIT must be positive")
	}
	if c.ExplicitWait <= 0 {
		errs = append(errs, "MLOCID_E2E_EXPLICIT_WAIT must be positive")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "MLOCID_E2E_POLL_INTERVAL must be positive")
	} else if c.PollInterval > c.ExplicitWait && c.ExplicitWait > 0 {
		errs = append(errs, "MLOCID_E2E_POLL_INTERVAL must not exceed MLOCID_E2E_EXPLICIT_WAIT")
	}
	if c.SettleDelay < 0 {
		errs = append(errs, "MLOCID_E2E_SETTLE_DELAY must not be negative")
	}
	if len(c.Password) < 6 {
		errs = append(errs, "MLOCID_E2E_PASSWORD must be at least 6 characters")
	}
	if c.UsernamePrefix == "" {
		errs = append(errs, "MLOCID_E2E_USERNAME_PREFIX must not be empty")
	}
	if c.ArtifactBucket != "" && c.AWSEndpointS3 == "" && c.AWSRegion == defaultRegion {
		errs = append(errs, "MLOCID_E2E_ARTIFACT_BUCKET requires AWS_ENDPOINT_URL_S3 or a concrete AWS_REGION")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UsesStandIn reports whether the suite should serve the stand-in application itself.
func (c *Suite) UsesStandIn() bool {
	return c.BaseURL == ""
}

// BrowserOptions returns the launch options for the configured backend.
func (c *Suite) BrowserOptions() browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Headless
	opts.ImplicitWait = c.ImplicitWait
	opts.SkipInstall = c.SkipInstall
	opts.ExecPath = c.ChromePath
	return opts
}

// WaitPolicy returns the explicit wait bound.
func (c *Suite) WaitPolicy() wait.Policy {
	return wait.Policy{Timeout: c.ExplicitWait, Interval: c.PollInterval}
}

// Server holds the stand-in mlocid server configuration.
type Server struct {
	ListenAddr      string
	SessionDuration time.Duration
	RateLimitConfig ratelimit.Config
	LogLevel        string
}

// LoadServer loads the stand-in configuration from the environment. A
// non-empty addr overrides LISTEN_ADDR.
func LoadServer(addr string) (*Server, error) {
	env := &envReader{}
	cfg := &Server{
		ListenAddr:      env.str("LISTEN_ADDR", ":8080"),
		SessionDuration: env.duration("SESSION_DURATION", 24*time.Hour),
		RateLimitConfig: ratelimit.Config{
			RPS:             env.float("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
			Burst:           env.integer("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
			CleanupInterval: env.duration("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
		},
		LogLevel: env.str("LOG_LEVEL", "info"),
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}

	errs := env.errs
	if err := cfg.Validate(); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			errs = append(errs, validationErr.Errors...)
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// Validate checks that the server configuration is usable.
func (c *Server) Validate() error {
	var errs []string
	if c.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if c.SessionDuration <= 0 {
		errs = append(errs, "SESSION_DURATION must be positive")
	}
	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// envReader reads typed environment variables, keeping the current value
// when a variable is unset and recording malformed values.
type envReader struct {
	errs []string
}

func (e *envReader) str(key, current string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return current
	}
	return value
}

func (e *envReader) boolean(key string, current bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return current
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be a boolean, got %q", key, value))
		return current
	}
	return parsed
}

func (e *envReader) duration(key string, current time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return current
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be a duration such as 10s, got %q", key, value))
		return current
	}
	return parsed
}

func (e *envReader) integer(key string, current int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return current
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be an integer, got %q", key, value))
		return current
	}
	return parsed
}

func (e *envReader) float(key string, current float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return current
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s must be a number, got %q", key, value))
		return current
	}
	return parsed
}
