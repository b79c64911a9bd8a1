package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Level: "debug", NoColor: true, Out: &buf})
	require.NoError(t, err)

	l := Component(logger, "gpio")
	l.Debug().Int("pin", 3).Msg("requested")

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "component=gpio")
	assert.Contains(t, out, "pin=3")
	assert.Contains(t, out, "requested")
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Options{Level: "warn", NoColor: true, Out: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestConsoleOutPassesBuffers(t *testing.T) {
	var buf bytes.Buffer
	assert.Same(t, &buf, consoleOut(&buf))
	assert.NotNil(t, consoleOut(nil))
}

func TestSetupWritesToFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer f.Close()

	logger, err := Setup(Options{Level: "info", NoColor: true, Out: f})
	require.NoError(t, err)
	logger.Info().Msg("to file")

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
