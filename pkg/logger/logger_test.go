package logger_test

import (
	"os"
	"testing"

	"github.com/ethan/streamkit/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesToFile(t *testing.T) {
	path := t.TempDir() + "/session.log"

	cfg := logger.NewConfig()
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = path

	log, err := logger.New(cfg)
	require.NoError(t, err)
	defer log.Close()

	log.Info("session established", "state", "dtls-done")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session established")
	assert.Contains(t, string(data), "dtls-done")
}

func TestDebugCategoryGating(t *testing.T) {
	path := t.TempDir() + "/session.log"

	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = path
	cfg.EnableCategory(logger.DebugSRTP)

	log, err := logger.New(cfg)
	require.NoError(t, err)
	defer log.Close()

	log.DebugSRTP("decrypt failed, dropping packet")
	log.DebugICE("binding request sent") // not enabled, should not appear

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "decrypt failed")
	assert.NotContains(t, string(data), "binding request sent")
}

func TestParseLevelAndFormat(t *testing.T) {
	_, err := logger.ParseLevel("bogus")
	assert.Error(t, err)

	lvl, err := logger.ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logger.LevelWarn, lvl)

	_, err = logger.ParseFormat("xml")
	assert.Error(t, err)
}

func TestOrDefaultFallsBackOnNil(t *testing.T) {
	assert.NotNil(t, logger.OrDefault(nil))
}
