package cli

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout returns what fn writes to stdout
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	fn()
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestPrintHelpers(t *testing.T) {
	out := captureStdout(t, func() {
		PrintInfo("Rebuilding the sqlite index")
		PrintWarning("The index outbox was empty, nothing replayed")
		PrintKeyValue("Took", DimStyle.Render("12ms"))
	})

	assert.Contains(t, out, SymbolInfo+" Rebuilding the sqlite index")
	assert.Contains(t, out, SymbolWarning)
	assert.Contains(t, out, "The index outbox was empty, nothing replayed")
	assert.Contains(t, out, "Took")
	assert.Contains(t, out, "12ms")
}

func TestPrintJSON(t *testing.T) {
	SetJSONOutput(false)
	out := captureStdout(t, func() {
		assert.False(t, PrintJSON(map[string]any{"replayed": 2}))
	})
	assert.Empty(t, out)

	SetJSONOutput(true)
	defer SetJSONOutput(false)
	out = captureStdout(t, func() {
		assert.True(t, PrintJSON(map[string]any{"replayed": 2}))
	})
	assert.JSONEq(t, `{"replayed": 2}`, out)
}
