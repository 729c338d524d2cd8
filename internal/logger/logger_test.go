package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		l, err := New("debug", format)
		require.NoError(t, err)
		require.NotNil(t, l.SugaredLogger)
	}

	_, err := New("loud", "console")
	assert.Error(t, err)
}

func TestRedaction(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.Info("sending", "smtp_password", "hunter2", "recipient", "a@b.com")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["smtp_password"])
	assert.Equal(t, "a@b.com", fields["recipient"])
}

func TestWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core)).With("run_id", "r-1")

	l.Debug("hidden")
	l.Warn("shown")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "r-1", entries[0].ContextMap()["run_id"])
}
