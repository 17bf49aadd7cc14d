package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

var suiteEnvKeys = []string{
	"MLOCID_E2E_CONFIG",
	"MLOCID_BASE_URL",
	"MLOCID_E2E_DRIVER",
	"MLOCID_E2E_HEADLESS",
	"MLOCID_E2E_IMPLICIT_WAIT",
	"MLOCID_E2E_EXPLICIT_WAIT",
	"MLOCID_E2E_POLL_INTERVAL",
	"MLOCID_E2E_SETTLE_DELAY",
	"MLOCID_E2E_PASSWORD",
	"MLOCID_E2E_USERNAME_PREFIX",
	"MLOCID_E2E_SKIP_INSTALL",
	"MLOCID_E2E_CHROME_PATH",
	"MLOCID_E2E_ISOLATE_COOKIES",
	"MLOCID_E2E_ARTIFACT_DIR",
	"MLOCID_E2E_ARTIFACT_BUCKET",
	"MLOCID_E2E_LOG_LEVEL",
	"AWS_ENDPOINT_URL_S3",
	"AWS_REGION",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"LISTEN_ADDR",
	"SESSION_DURATION",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"RATE_LIMIT_CLEANUP_INTERVAL",
	"LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range suiteEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadSuite_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadSuite()
	if err != nil {
		t.Fatalf("LoadSuite: %v", err)
	}
	if !cfg.UsesStandIn() {
		t.Fatal("empty base URL should select the stand-in")
	}
	if cfg.Driver != DriverPlaywright || !cfg.Headless {
		t.Fatalf("unexpected driver defaults: %+v", cfg)
	}
	if cfg.ImplicitWait != 10*time.Second || cfg.ExplicitWait != 10*time.Second {
		t.Fatalf("expected 10s waits, got implicit=%s explicit=%s", cfg.ImplicitWait, cfg.ExplicitWait)
	}
	if cfg.PollInterval != 100*time.Millisecond || cfg.SettleDelay != time.Second {
		t.Fatalf("unexpected poll/settle: %s %s", cfg.PollInterval, cfg.SettleDelay)
	}
	if cfg.Password != "testpass123" || cfg.UsernamePrefix != "testuser_" {
		t.Fatalf("unexpected credentials defaults: %q %q", cfg.Password, cfg.UsernamePrefix)
	}
	if cfg.IsolateCookies {
		t.Fatal("cookie isolation must be opt-in")
	}

	opts := cfg.BrowserOptions()
	if len(opts.Args) != 2 || opts.Args[0] != "--no-sandbox" || opts.Args[1] != "--disable-dev-shm-usage" {
		t.Fatalf("unexpected browser args: %v", opts.Args)
	}
	policy := cfg.WaitPolicy()
	if policy.Timeout != 10*time.Second || policy.Interval != 100*time.Millisecond {
		t.Fatalf("unexpected wait policy: %+v", policy)
	}
}

func TestLoadSuite_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MLOCID_BASE_URL", "http://localhost:5000/")
	t.Setenv("MLOCID_E2E_DRIVER", "ChromeDP")
	t.Setenv("MLOCID_E2E_HEADLESS", "false")
	t.Setenv("MLOCID_E2E_EXPLICIT_WAIT", "3s")
	t.Setenv("MLOCID_E2E_ISOLATE_COOKIES", "true")

	cfg, err := LoadSuite()
	if err != nil {
		t.Fatalf("LoadSuite: %v", err)
	}
	if cfg.BaseURL != "http://localhost:5000" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.BaseURL)
	}
	if cfg.UsesStandIn() {
		t.Fatal("explicit base URL must not start the stand-in")
	}
	if cfg.Driver != DriverChromedp || cfg.Headless || cfg.ExplicitWait != 3*time.Second || !cfg.IsolateCookies {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadSuite_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "suite.yaml")
	data := "base_url: http://mlocid.test:8000\nimplicit_wait: 4s\npassword: filepass99\ndriver: chromedp\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MLOCID_E2E_CONFIG", path)
	t.Setenv("MLOCID_E2E_PASSWORD", "envpass77")

	cfg, err := LoadSuite()
	if err != nil {
		t.Fatalf("LoadSuite: %v", err)
	}
	if cfg.BaseURL != "http://mlocid.test:8000" || cfg.ImplicitWait != 4*time.Second || cfg.Driver != DriverChromedp {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Password != "envpass77" {
		t.Fatalf("env must win over file, got %q", cfg.Password)
	}
	if cfg.ExplicitWait != 10*time.Second {
		t.Fatalf("unset file keys must keep defaults, got %s", cfg.ExplicitWait)
	}
}

func TestLoadSuite_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("MLOCID_BASE_URL", "localhost:5000")
	t.Setenv("MLOCID_E2E_DRIVER", "selenium")
	t.Setenv("MLOCID_E2E_IMPLICIT_WAIT", "ten seconds")
	t.Setenv("MLOCID_E2E_PASSWORD", "abc")

	_, err := LoadSuite()
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	msg := err.Error()
	for _, expected := range []string{
		"MLOCID_BASE_URL",
		"MLOCID_E2E_DRIVER",
		"MLOCID_E2E_IMPLICIT_WAIT",
		"MLOCID_E2E_PASSWORD",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func TestLoadSuite_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MLOCID_E2E_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadSuite(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadServer(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.SessionDuration != 24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RateLimitConfig.RPS != 20 || cfg.RateLimitConfig.Burst != 40 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimitConfig)
	}

	t.Setenv("LISTEN_ADDR", ":9000")
	cfg, err = LoadServer(":7000")
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("addr flag must override LISTEN_ADDR, got %q", cfg.ListenAddr)
	}

	t.Setenv("RATE_LIMIT_BURST", "0")
	if _, err := LoadServer(""); err == nil || !strings.Contains(err.Error(), "RATE_LIMIT_BURST") {
		t.Fatalf("expected burst validation error, got %v", err)
	}
}

func testSuiteValidate_PollIntervalBoundedByTimeout(t *rapid.T) {
	cfg := DefaultSuite()
	cfg.ExplicitWait = time.Duration(rapid.IntRange(1, 20_000).Draw(t, "explicit_ms")) * time.Millisecond
	cfg.PollInterval = time.Duration(rapid.IntRange(1, 20_000).Draw(t, "poll_ms")) * time.Millisecond

	err := cfg.Validate()
	if cfg.PollInterval > cfg.ExplicitWait {
		if err == nil || !strings.Contains(err.Error(), "MLOCID_E2E_POLL_INTERVAL") {
			t.Fatalf("poll %s > explicit %s should be rejected, got %v", cfg.PollInterval, cfg.ExplicitWait, err)
		}
		return
	}
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestSuiteValidate_PollIntervalBoundedByTimeout(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSuiteValidate_PollIntervalBoundedByTimeout)
}
