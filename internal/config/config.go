package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CoverageEnvVar holds the output path. Presence enables collection.
const CoverageEnvVar = "CIRCLECI_COVERAGE"

// Config holds host configuration loaded from an optional YAML file and env.
type Config struct {
	// Enabled is true when CoverageEnvVar is set, even to an empty string.
	Enabled    bool
	OutputFile string

	ServerPort string

	Root            string
	ExcludeSegments []string

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Coverage struct {
		Root            string   `yaml:"root"`
		ExcludeSegments []string `yaml:"exclude_segments"`
	} `yaml:"coverage"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) relative to the working directory
// when it exists, then applies env overrides: CIRCLECI_COVERAGE, PORT, COVERAGE_ROOT.
// A missing file means defaults.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	cfg.OutputFile, cfg.Enabled = os.LookupEnv(CoverageEnvVar)

	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8787"
	}

	cfg.Root = strings.TrimSpace(os.Getenv("COVERAGE_ROOT"))
	if cfg.Root == "" {
		cfg.Root = strings.TrimSpace(fc.Coverage.Root)
	}
	if cfg.Root == "" {
		cfg.Root = cwd
	} else if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(cwd, cfg.Root)
	}

	cfg.ExcludeSegments = fc.Coverage.ExcludeSegments
	if len(cfg.ExcludeSegments) == 0 {
		cfg.ExcludeSegments = []string{"node_modules"}
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 50*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	for _, seg := range cfg.ExcludeSegments {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("coverage.exclude_segments must not contain empty entries")
		}
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("reliability.rate_limit_rps must not be negative, got %d", cfg.RateLimitRPS)
	}
	if cfg.ShutdownInFlightTimeout > cfg.ShutdownTimeout {
		cfg.ShutdownInFlightTimeout = cfg.ShutdownTimeout
	}
	return nil
}
