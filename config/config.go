package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"lendcore/native/common"
	"lendcore/native/risk"
)

// Config is the daemon runtime configuration, decoded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	AuditDBPath   string `toml:"AuditDBPath"`
	AssetsFile    string `toml:"AssetsFile"`

	LogLevel string `toml:"LogLevel"`
	LogFile  string `toml:"LogFile"`

	CloseFactorBps        uint64 `toml:"CloseFactorBps"`
	StaleToleranceSeconds uint64 `toml:"StaleToleranceSeconds"`

	Quota     QuotaConfig     `toml:"Quota"`
	RateLimit RateLimitConfig `toml:"RateLimit"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
	Admin     AdminConfig     `toml:"Admin"`
}

// AdminConfig holds the HMAC credentials guarding the governance routes.
// Leaving APIKeys empty disables the admin surface entirely.
type AdminConfig struct {
	APIKeys              map[string]string `toml:"APIKeys"`
	TimestampSkewSeconds uint64            `toml:"TimestampSkewSeconds"`
}

// QuotaConfig throttles per-account engine throughput.
type QuotaConfig struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxNotionalPerEpoch uint64 `toml:"MaxNotionalPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// RateLimitConfig bounds the HTTP gateway request rate.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// TelemetryConfig selects the OTLP export target.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
}

// Load reads the configuration at path, writing a default file first when none
// exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(path)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	dir := filepath.Dir(path)
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = filepath.Join(dir, "lendcore-data")
	}
	if strings.TrimSpace(c.AuditDBPath) == "" {
		c.AuditDBPath = filepath.Join(c.DataDir, "audit.db")
	}
	if strings.TrimSpace(c.AssetsFile) == "" {
		c.AssetsFile = filepath.Join(dir, "assets.yaml")
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.StaleToleranceSeconds == 0 {
		c.StaleToleranceSeconds = 300
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 100
	}
}

func (c *Config) validate() error {
	if c.CloseFactorBps > 10_000 {
		return fmt.Errorf("config: CloseFactorBps %d exceeds 100%%", c.CloseFactorBps)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", c.LogLevel)
	}
	for key, secret := range c.Admin.APIKeys {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(secret) == "" {
			return fmt.Errorf("config: Admin.APIKeys entries need a key and a secret")
		}
	}
	return nil
}

// AdminSkew returns the configured signature timestamp skew window.
func (c *Config) AdminSkew() time.Duration {
	return time.Duration(c.Admin.TimestampSkewSeconds) * time.Second
}

// EngineConfig maps the file settings onto the risk engine's knobs.
func (c *Config) EngineConfig() risk.Config {
	return risk.Config{
		CloseFactorBps: c.CloseFactorBps,
		StaleTolerance: time.Duration(c.StaleToleranceSeconds) * time.Second,
		Quota: common.Quota{
			MaxRequestsPerEpoch: c.Quota.MaxRequestsPerEpoch,
			MaxNotionalPerEpoch: c.Quota.MaxNotionalPerEpoch,
			EpochSeconds:        c.Quota.EpochSeconds,
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:         ":8080",
		CloseFactorBps:        5000,
		StaleToleranceSeconds: 300,
		LogLevel:              "info",
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
	cfg.applyDefaults(path)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
