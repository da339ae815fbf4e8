package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := DefaultConfig()
	cfg.OutputPaths = []string{path}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Named("ledger").With(zap.String("request_id", "abc")).Info("account registered")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"account registered"`)
	assert.Contains(t, string(data), `"logger":"ledger"`)
	assert.Contains(t, string(data), `"request_id":"abc"`)
}

func TestNewLoggerRejectsUnknownEncoding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop().Info("discarded")
	})
}
