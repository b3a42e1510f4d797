package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.AppConfig{LogLevel: "chatty"})
	assert.Error(t, err)
}

func TestNewWritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loyalty.log")

	logger, err := New(config.AppConfig{LogLevel: "info", LogFile: path, Environment: "test"})
	require.NoError(t, err)
	logger.Info("ledger ready")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"ledger ready"`)
	assert.Contains(t, string(raw), `"env":"test"`)
}
