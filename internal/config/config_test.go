package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "record_decisions", cfg.RabbitMQ.Queue)
	assert.Equal(t, int64(5), cfg.Redis.LoginAttempts)
	assert.Equal(t, "admin@example.com", cfg.Admin.Email)
	assert.Equal(t, []string{"https://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.TLSEnabled())

	user, admin, err := cfg.Ledger.Balances()
	require.NoError(t, err)
	assert.True(t, user.Equal(decimal.NewFromInt(10000)))
	assert.True(t, admin.IsZero())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payportal.yaml")
	content := `
server:
  addr: ":9090"
  read_timeout: 3s
  allowed_origins:
    - https://portal.example.com
  tls_cert: /etc/payportal/cert.pem
  tls_key: /etc/payportal/key.pem
storage:
  driver: memory
auth:
  jwt_secret: from-file
ledger:
  default_balance: "2500.50"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("PAYPORTAL_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://portal.example.com"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Server.TLSEnabled())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "2500.50", cfg.Ledger.DefaultBalance)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
		{"empty dsn", func(c *Config) { c.Postgres.DSN = "" }, "postgres.dsn"},
		{"bad balance", func(c *Config) { c.Ledger.DefaultBalance = "lots" }, "ledger.default_balance"},
		{"cert without key", func(c *Config) { c.Server.TLSCert = "cert.pem" }, "server.tls_cert"},
		{"negative balance", func(c *Config) { c.Ledger.AdminBalance = "-1" }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			cfg.Auth.JWTSecret = "secret"
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
