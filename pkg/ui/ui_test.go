package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		SetQuietMode(false)
	})
	return &buf
}

func TestPrintFunctions(t *testing.T) {
	buf := capture(t)

	PrintInfo("Cursor", "abc")
	PrintSuccess("done")
	PrintWarning("slow", "429")
	PrintError("failed", "boom")

	out := buf.String()
	assert.Contains(t, out, "Cursor:")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "slow: 429")
	assert.Contains(t, out, "failed: boom")
}

func TestQuietModeKeepsErrors(t *testing.T) {
	buf := capture(t)
	SetQuietMode(true)
	assert.True(t, IsQuietMode())

	PrintInfo("Cursor", "abc")
	PrintSuccess("done")
	PrintError("failed")

	assert.NotContains(t, buf.String(), "Cursor")
	assert.NotContains(t, buf.String(), "done")
	assert.Contains(t, buf.String(), "failed")
}

func TestRenderPanel(t *testing.T) {
	panel := RenderPanel("Iteration", []Row{
		{Label: "Saved", Value: "10"},
		{Label: "Skipped by filter", Value: "2"},
	})

	assert.Contains(t, panel, "Iteration")
	assert.Contains(t, panel, "Saved")
	assert.Contains(t, panel, "Skipped by filter")
	assert.GreaterOrEqual(t, strings.Count(panel, "\n"), 3)
}

func TestPrintListTruncates(t *testing.T) {
	buf := capture(t)

	PrintList([]string{"a", "b", "c", "d"}, 2)

	out := buf.String()
	assert.Contains(t, out, "- a")
	assert.Contains(t, out, "- b")
	assert.NotContains(t, out, "- c")
	assert.Contains(t, out, "2 more")
}
