package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	prev := color.NoColor
	color.NoColor = true

	var out, errOut bytes.Buffer
	restore := SetOutput(&out, &errOut)
	t.Cleanup(func() {
		restore()
		color.NoColor = prev
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nThis is a test error\n", errOut.String())
	})

	t.Run("prints a single suggestion bare", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("prints details sorted by key", func(t *testing.T) {
		_, errOut := capture(t)
		details := map[string]string{
			"Run":  "test-run",
			"File": "/tmp/h2o.out",
		}
		err := ErrorWithContext("Test Error", "Explanation", details, nil)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "  File: /tmp/h2o.out\n  Run: test-run\n")
	})

	t.Run("omits empty explanation", func(t *testing.T) {
		_, errOut := capture(t)
		_ = ErrorWithContext("Test Error", "", map[string]string{"Key": "Value"}, []string{"Fix it"})
		assert.Equal(t, "Test Error\n\n\n  Key: Value\n\nFix it\n", errOut.String())
	})
}

func TestMessages(t *testing.T) {
	out, errOut := capture(t)

	Success("wrote %d lines\n", 15)
	Success("✓ already prefixed\n")
	Info("plain %s\n", "text")
	Step("auditing\n")
	Warning("slow\n")

	assert.Equal(t, "✓ wrote 15 lines\n✓ already prefixed\nplain text\n→ auditing\n", out.String())
	assert.Equal(t, "⚠️  slow\n", errOut.String())
}
