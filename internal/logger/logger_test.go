package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listsync/backend/internal/config"
)

func TestNew_WritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "listsync.log")

	log, err := New(config.LogConfig{Level: "info", File: logFile})
	require.NoError(t, err)

	log.Info("reconcile finished")
	_ = log.Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "reconcile finished")
	assert.Contains(t, string(content), `"level":"info"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New(config.LogConfig{Level: "verbose"})
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(0))   // info
	assert.False(t, log.Core().Enabled(-1)) // debug
}
