package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/copse/internal/printer"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr, oldNoColor := printer.Stdout, printer.Stderr, color.NoColor
	printer.Stdout, printer.Stderr, color.NoColor = stdout, stderr, true
	t.Cleanup(func() { printer.Stdout, printer.Stderr, color.NoColor = oldOut, oldErr, oldNoColor })

	// Flag values are package state; put them back between runs
	configPath, logLevel, logFormat = "copse.yml", "warn", "console"
	runPayload, runTimeout, runQuiet = "", 0, false
	reportReply = ""
	inspectOutputFormat = "default"
	inspectSince, inspectUntil, inspectName, inspectKind, inspectStatus = "", "", "", "", ""
	triggerPayload, triggerWait, triggerTimeout = "", false, 0
	watchTimeout, watchInterval = 0, 200*time.Millisecond

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copse.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	stdout, _, err := execute(t)
	assert.NoError(t, err)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "copse")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, _, err := execute(t, "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "today")
	assert.Equal(t, "1.2.3 (commit: abc, built: today)", rootCmd.Version)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logLevel, logFormat = "info", "json"
	logger, err := newLogger(&buf)
	require.NoError(t, err)
	logger.Info().Str("event_type", "x").Msg("hello")
	assert.Contains(t, buf.String(), `"event_type":"x"`)

	logLevel = "loud"
	_, err = newLogger(&buf)
	assert.Error(t, err)

	logLevel, logFormat = "info", "xml"
	_, err = newLogger(&buf)
	assert.Error(t, err)

	logLevel, logFormat = "warn", "console"
}
