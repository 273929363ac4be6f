package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen   = ":8470"
	defaultProtocol = "./cdp.toml"
	defaultIndexDSN = "file:cdp-index.db"
)

// Config captures the runtime settings of the cdpd daemon. Protocol
// parameters live in the TOML file named by ProtocolConfig.
type Config struct {
	ListenAddress  string                     `yaml:"listen"`
	Environment    string                     `yaml:"env"`
	ProtocolConfig string                     `yaml:"protocol_config"`
	TLS            TLSConfig                  `yaml:"tls"`
	Auth           AuthConfig                 `yaml:"auth"`
	RateLimits     map[string]RateLimitConfig `yaml:"rate_limits"`
	Index          IndexConfig                `yaml:"index"`
	Telemetry      TelemetryConfig            `yaml:"telemetry"`
	Log            LogConfig                  `yaml:"log"`
	CORSOrigins    []string                   `yaml:"cors_origins"`
	Webhook        WebhookConfig              `yaml:"webhook"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig selects how bearer tokens are verified. The HMAC secret is read
// from the environment variable named by HMACSecretEnv.
type AuthConfig struct {
	Enabled           bool     `yaml:"enabled"`
	HMACSecretEnv     string   `yaml:"hmac_secret_env"`
	RSAPublicKeyPath  string   `yaml:"rsa_public_key"`
	Issuer            string   `yaml:"issuer"`
	Audience          string   `yaml:"audience"`
	AllowAnonymousGet bool     `yaml:"allow_anonymous_reads"`
	OptionalPaths     []string `yaml:"optional_paths"`
}

type RateLimitConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// IndexConfig points the event indexer at postgres or sqlite.
type IndexConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Headers     string  `yaml:"headers"`
	Metrics     bool    `yaml:"metrics"`
	Traces      bool    `yaml:"traces"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// WebhookConfig forwards selected protocol events to an HTTP endpoint. The
// signing secret is read from the environment variable named by SecretEnv.
type WebhookConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	SecretEnv   string   `yaml:"secret_env"`
	Events      []string `yaml:"events"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// Secret resolves the signing secret from the environment.
func (cfg WebhookConfig) Secret() string {
	if cfg.SecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(cfg.SecretEnv))
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HMACSecret resolves the configured secret from the environment.
func (cfg AuthConfig) HMACSecret() string {
	if cfg.HMACSecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(cfg.HMACSecretEnv))
}

// RSAPublicKey reads the PEM key file when one is configured.
func (cfg AuthConfig) RSAPublicKey() (string, error) {
	if cfg.RSAPublicKeyPath == "" {
		return "", nil
	}
	raw, err := os.ReadFile(cfg.RSAPublicKeyPath)
	if err != nil {
		return "", fmt.Errorf("read rsa public key: %w", err)
	}
	return string(raw), nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.ProtocolConfig = strings.TrimSpace(cfg.ProtocolConfig)
	if cfg.ProtocolConfig == "" {
		cfg.ProtocolConfig = defaultProtocol
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.TLS.ClientCAPath = strings.TrimSpace(cfg.TLS.ClientCAPath)
	cfg.Auth.HMACSecretEnv = strings.TrimSpace(cfg.Auth.HMACSecretEnv)
	cfg.Auth.RSAPublicKeyPath = strings.TrimSpace(cfg.Auth.RSAPublicKeyPath)
	cfg.Auth.OptionalPaths = trimAll(cfg.Auth.OptionalPaths)
	if cfg.Auth.AllowAnonymousGet && len(cfg.Auth.OptionalPaths) == 0 {
		cfg.Auth.OptionalPaths = []string{"/v1/views"}
	}
	cfg.Index.Driver = strings.ToLower(strings.TrimSpace(cfg.Index.Driver))
	if cfg.Index.Driver == "" {
		cfg.Index.Driver = "sqlite"
	}
	cfg.Index.DSN = strings.TrimSpace(cfg.Index.DSN)
	if cfg.Index.DSN == "" && cfg.Index.Driver == "sqlite" {
		cfg.Index.DSN = defaultIndexDSN
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)
	cfg.Webhook.Endpoint = strings.TrimSpace(cfg.Webhook.Endpoint)
	cfg.Webhook.SecretEnv = strings.TrimSpace(cfg.Webhook.SecretEnv)
	cfg.Webhook.Events = trimAll(cfg.Webhook.Events)
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimitConfig{}
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecretEnv == "" && cfg.Auth.RSAPublicKeyPath == "" {
		return fmt.Errorf("auth: hmac_secret_env or rsa_public_key is required when enabled")
	}
	switch cfg.Index.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("index: unsupported driver %q", cfg.Index.Driver)
	}
	if cfg.Index.DSN == "" {
		return fmt.Errorf("index: dsn required")
	}
	for key, limit := range cfg.RateLimits {
		if limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: values must be non-negative", key)
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if (cfg.Telemetry.Metrics || cfg.Telemetry.Traces) && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint required when exporting")
	}
	if cfg.Webhook.Endpoint != "" && cfg.Webhook.SecretEnv == "" {
		return fmt.Errorf("webhook: secret_env required with an endpoint")
	}
	if cfg.Webhook.MaxAttempts < 0 {
		return fmt.Errorf("webhook: max_attempts must be non-negative")
	}
	return nil
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

// MTLSEnabled reports whether mutual TLS verification is configured.
func (cfg TLSConfig) MTLSEnabled() bool {
	return cfg.ClientCAPath != ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
