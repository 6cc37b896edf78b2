package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BruceJL/mysql-json-bridge/pkg/config"
)

func TestEffectiveLogLevel(t *testing.T) {
	orig := logLevel
	defer func() { logLevel = orig }()

	withLevel := &config.Config{}
	withLevel.Log.Level = "warn"

	// the config file's log.level applies when the flag is unset
	logLevel = ""
	assert.Equal(t, "warn", effectiveLogLevel(withLevel))

	// the flag wins when given
	logLevel = "debug"
	assert.Equal(t, "debug", effectiveLogLevel(withLevel))

	logLevel = ""
	assert.Equal(t, "info", effectiveLogLevel(&config.Config{}))
	assert.Equal(t, "info", effectiveLogLevel(nil))
}

func TestBuildLogger(t *testing.T) {
	logger, err := buildLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = buildLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = buildLogger("none")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))

	_, err = buildLogger("loud")
	assert.Error(t, err)
}
