package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp switches into a fresh temp dir for the duration of the test and clears
// env vars Load reads.
func chdirTemp(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "PORT", "COVERAGE_ROOT", CoverageEnvVar} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	// Resolve symlinks (macOS /var -> /private/var) so comparisons with Getwd match.
	wd, _ := os.Getwd()
	return wd
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Enabled {
		t.Error("Enabled = true, want false when CIRCLECI_COVERAGE unset")
	}
	if cfg.ServerPort != "8787" {
		t.Errorf("ServerPort = %q, want 8787", cfg.ServerPort)
	}
	if cfg.Root != dir {
		t.Errorf("Root = %q, want working directory %q", cfg.Root, dir)
	}
	if len(cfg.ExcludeSegments) != 1 || cfg.ExcludeSegments[0] != "node_modules" {
		t.Errorf("ExcludeSegments = %v, want [node_modules]", cfg.ExcludeSegments)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.RateLimitRPS != 0 {
		t.Errorf("RateLimitRPS = %d, want 0 (disabled)", cfg.RateLimitRPS)
	}
	if cfg.ShutdownTimeout != 30*time.Second || cfg.ShutdownInFlightTimeout != 10*time.Second {
		t.Errorf("shutdown timeouts = %v/%v, want 30s/10s", cfg.ShutdownTimeout, cfg.ShutdownInFlightTimeout)
	}
}

// TestLoad_CoverageEnvPresence verifies that presence, not content, enables collection.
func TestLoad_CoverageEnvPresence(t *testing.T) {
	chdirTemp(t)

	t.Setenv(CoverageEnvVar, "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Enabled || cfg.OutputFile != "" {
		t.Errorf("empty value: Enabled=%v OutputFile=%q, want true and empty", cfg.Enabled, cfg.OutputFile)
	}

	t.Setenv(CoverageEnvVar, "reports/coverage.json")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Enabled || cfg.OutputFile != "reports/coverage.json" {
		t.Errorf("Enabled=%v OutputFile=%q, want true and reports/coverage.json", cfg.Enabled, cfg.OutputFile)
	}
}

func TestLoad_FileValues(t *testing.T) {
	dir := chdirTemp(t)
	writeEnvFile(t, dir, `
server:
  port: "9000"
coverage:
  root: "app"
  exclude_segments: ["node_modules", "vendor/"]
request:
  timeout: "3s"
reliability:
  rate_limit_rps: 50
shutdown:
  timeout: "5s"
  inflight_timeout: "20s"
  inflight_check_interval: "10ms"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q, want 9000", cfg.ServerPort)
	}
	if want := filepath.Join(dir, "app"); cfg.Root != want {
		t.Errorf("Root = %q, want %q", cfg.Root, want)
	}
	if len(cfg.ExcludeSegments) != 2 || cfg.ExcludeSegments[1] != "vendor/" {
		t.Errorf("ExcludeSegments = %v", cfg.ExcludeSegments)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.RequestTimeout)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 50 {
		t.Errorf("rate limit = %d/%d, want 50/50 (burst defaults to rps)", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.ShutdownInFlightTimeout != 5*time.Second {
		t.Errorf("ShutdownInFlightTimeout = %v, want clamped to 5s", cfg.ShutdownInFlightTimeout)
	}
	if cfg.ShutdownInFlightCheckInterval != 10*time.Millisecond {
		t.Errorf("ShutdownInFlightCheckInterval = %v, want 10ms", cfg.ShutdownInFlightCheckInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "server:\n  port: \"9000\"\ncoverage:\n  root: \"app\"\n")
	t.Setenv("PORT", "9100")
	abs := filepath.Join(dir, "elsewhere")
	t.Setenv("COVERAGE_ROOT", abs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Errorf("ServerPort = %q, want 9100 from env", cfg.ServerPort)
	}
	if cfg.Root != abs {
		t.Errorf("Root = %q, want %q from env", cfg.Root, abs)
	}
}

func TestLoad_EnvNameSelectsFile(t *testing.T) {
	dir := chdirTemp(t)
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "ci.yaml"), []byte("server:\n  port: \"7000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_NAME", "ci")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q, want 7000 from config/ci.yaml", cfg.ServerPort)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "request:\n  timeout: \"soon\"\nshutdown:\n  timeout: \"-1s\"\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want default 10s", cfg.RequestTimeout)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	dir := chdirTemp(t)
	writeEnvFile(t, dir, "server: [unclosed\n")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty exclude segment", "coverage:\n  exclude_segments: [\"node_modules\", \" \"]\n", "exclude_segments"},
		{"negative rate limit", "reliability:\n  rate_limit_rps: -1\n", "rate_limit_rps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := chdirTemp(t)
			writeEnvFile(t, dir, tt.yaml)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"  ", time.Second},
		{"250ms", 250 * time.Millisecond},
		{" 2s ", 2 * time.Second},
		{"0s", time.Second},
		{"-5s", time.Second},
		{"bogus", time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

// TestCoverageGaps_IntentionallyUntested documents paths we reviewed but chose not to test.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Run("Load_read_config_error", func(t *testing.T) {
		t.Skip("ReadFile error path (permission denied, etc.) requires injecting a failure; not worth portability cost")
	})
}
