package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cdpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "tls:\n  allow_insecure: true\n"))
	require.NoError(t, err)
	require.Equal(t, defaultListen, cfg.ListenAddress)
	require.Equal(t, defaultProtocol, cfg.ProtocolConfig)
	require.Equal(t, "sqlite", cfg.Index.Driver)
	require.Equal(t, defaultIndexDSN, cfg.Index.DSN)
	require.NotNil(t, cfg.RateLimits)
}

func TestLoadReadsFullConfig(t *testing.T) {
	t.Setenv("CDPD_TEST_SECRET", " s3cret ")
	cfg, err := Load(writeConfig(t, `listen: " 127.0.0.1:9000 "
env: staging
protocol_config: /etc/cdp/cdp.toml
tls:
  allow_insecure: true
auth:
  enabled: true
  hmac_secret_env: CDPD_TEST_SECRET
  audience: cdpd
  allow_anonymous_reads: true
rate_limits:
  challenges:
    rate_per_second: 2
    burst: 4
index:
  driver: postgres
  dsn: postgres://cdp@localhost/cdp
telemetry:
  endpoint: otel:4318
  traces: true
  sample_ratio: 0.25
log:
  file: /var/log/cdpd.log
webhook:
  endpoint: https://hooks.example/cdp
  secret_env: CDPD_TEST_SECRET
  events: [" challenge.started "]
`))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "s3cret", cfg.Auth.HMACSecret())
	require.Equal(t, []string{"/v1/views"}, cfg.Auth.OptionalPaths)
	require.Equal(t, RateLimitConfig{RatePerSecond: 2, Burst: 4}, cfg.RateLimits["challenges"])
	require.Equal(t, "postgres", cfg.Index.Driver)
	require.Equal(t, 100, cfg.Log.MaxSizeMB)
	require.Equal(t, []string{"challenge.started"}, cfg.Webhook.Events)
	require.Equal(t, "s3cret", cfg.Webhook.Secret())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"tls":       "listen: :1\n",
		"half tls":  "tls:\n  cert: a.pem\n",
		"auth":      "tls:\n  allow_insecure: true\nauth:\n  enabled: true\n",
		"driver":    "tls:\n  allow_insecure: true\nindex:\n  driver: mysql\n  dsn: x\n",
		"postgres":  "tls:\n  allow_insecure: true\nindex:\n  driver: postgres\n",
		"telemetry": "tls:\n  allow_insecure: true\ntelemetry:\n  metrics: true\n",
		"unknown":   "tls:\n  allow_insecure: true\nbootnodes: []\n",
		"webhook":   "tls:\n  allow_insecure: true\nwebhook:\n  endpoint: http://x\n",
	}
	for name, contents := range cases {
		_, err := Load(writeConfig(t, contents))
		require.Error(t, err, name)
	}
}
