package printer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dyluth/copse/internal/coordinator"
	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects printer output for the duration of a test.
func capture(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr, oldNoColor := Stdout, Stderr, color.NoColor
	Stdout, Stderr, color.NoColor = stdout, stderr, true
	t.Cleanup(func() { Stdout, Stderr, color.NoColor = oldOut, oldErr, oldNoColor })
	return stdout, stderr
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, stderr := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, stderr.String(), "This is a test error")
	})

	t.Run("single suggestion printed plainly", func(t *testing.T) {
		_, stderr := capture(t)
		Error("Test Error", "Explanation", []string{"Try this fix"})
		assert.Contains(t, stderr.String(), "\nTry this fix\n")
		assert.NotContains(t, stderr.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, stderr := capture(t)
		Error("Test Error", "Explanation", []string{"First option", "Second option"})
		assert.Contains(t, stderr.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, stderr := capture(t)
	err := ErrorWithContext("Test Error", "Explanation", map[string]string{
		"Instance": "test-instance",
		"Config":   "copse.yml",
	}, nil)
	require.Equal(t, "Test Error", err.Error())
	assert.Contains(t, stderr.String(), "  Config: copse.yml\n  Instance: test-instance\n", "keys are sorted")
}

func TestErrorFrom_KeepsCause(t *testing.T) {
	_, stderr := capture(t)
	cause := apperrors.NewConfigError("invalid configuration: %v", errors.New("bad version"))

	err := ErrorFrom(cause, "Invalid copse.yml", "", nil)
	assert.Equal(t, "Invalid copse.yml", err.Error())
	assert.Contains(t, stderr.String(), "bad version")
	assert.Equal(t, apperrors.ExitErrorConfig, apperrors.ExitCode(err))
}

func TestMessages(t *testing.T) {
	stdout, _ := capture(t)
	Success("done\n")
	Warning("careful\n")
	Step("next\n")
	Info("plain %d\n", 1)

	out := stdout.String()
	assert.Contains(t, out, "✓ done")
	assert.Contains(t, out, "⚠️  careful")
	assert.Contains(t, out, "→ next")
	assert.Contains(t, out, "plain 1")
}

func TestStatus(t *testing.T) {
	capture(t)
	assert.Equal(t, "success", Status(blackboard.StatusSuccess))
	assert.Equal(t, "waiting", Status(blackboard.StatusWaiting))
}

func TestSink(t *testing.T) {
	capture(t)
	var buf bytes.Buffer
	sink := NewSink(&buf)

	sink.Report(coordinator.Indicator{Coordinator: "build", Fill: coordinator.FillGreen, Shape: coordinator.ShapeDot, Text: "success"})
	sink.Report(coordinator.Indicator{Coordinator: "retry", Fill: coordinator.FillYellow, Shape: coordinator.ShapeRing, Text: "run already active"})

	assert.Equal(t,
		"● build              success\n○ retry              run already active\n",
		buf.String())
}
