package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payportal/internal/config"
	"payportal/internal/logging"
)

const testConfig = `
storage:
  driver: memory
auth:
  jwt_secret: test-secret
  bcrypt_cost: 4
admin:
  email: root@portal.test
  password: rootpass123
log:
  level: error
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Driver = "memory"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	cfg.Admin.Email = "root@portal.test"
	cfg.Admin.Password = "rootpass123"
	cfg.Server.Addr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payportal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewAppServesHealthAndAdminLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	a, err := newApp(ctx, memoryConfig(t), logging.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.consumer)

	w := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	preflight := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	preflight.Header.Set("Origin", "https://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	a.server.Handler().ServeHTTP(w, preflight)
	assert.Equal(t, "https://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	body, _ := json.Marshal(map[string]string{"email": "root@portal.test", "password": "rootpass123"})
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	a.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "admin", resp.User.Role)
}

func TestNewAppWithoutAdminPassword(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Admin.Password = ""

	a, err := newApp(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer a.Close()

	exists, err := a.store.AdminExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewAppRejectsBadBalance(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Ledger.DefaultBalance = "lots"

	_, err := newApp(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Admin.Password = ""

	a, err := newApp(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer a.Close()

	cfg.Admin.Password = "rootpass123"
	created, err := seedAdmin(ctx, a.ledger, cfg)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = seedAdmin(ctx, a.ledger, cfg)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid memory config", body: testConfig},
		{
			name:    "missing jwt secret",
			body:    "storage:\n  driver: memory\n",
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "unknown driver",
			body:    "storage:\n  driver: sqlite\nauth:\n  jwt_secret: x\n",
			wantErr: "storage.driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath = writeConfig(t, tt.body)
			defer func() { configPath = "" }()

			cfg, logger, err := loadConfig()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, "memory", cfg.Storage.Driver)
			assert.Equal(t, 4, cfg.Auth.BcryptCost)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "absent.yaml")
	defer func() { configPath = "" }()

	_, _, err := loadConfig()
	assert.Error(t, err)
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "seed-admin"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestSeedAdminCommand(t *testing.T) {
	path := writeConfig(t, testConfig)
	defer func() { configPath = "" }()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"seed-admin", "--config", path})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "created admin root@portal.test")
}

func TestMigrateRequiresPostgres(t *testing.T) {
	path := writeConfig(t, testConfig)
	defer func() { configPath = "" }()

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"migrate", "--config", path})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres driver")
}

func TestServeFailsOnMissingCertificate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := memoryConfig(t)
	dir := t.TempDir()
	cfg.Server.TLSCert = filepath.Join(dir, "cert.pem")
	cfg.Server.TLSKey = filepath.Join(dir, "key.pem")

	err := serve(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server")
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, serve(ctx, memoryConfig(t), logging.NewNop()))
}
