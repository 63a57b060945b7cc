package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{""}, wrapText("   ", 10))
	assert.Equal(t, []string{"one two", "three"}, wrapText("one two three", 8))
	assert.Equal(t, []string{"unbreakableword"}, wrapText("unbreakableword", 4))
}

func TestBox_Render(t *testing.T) {
	out := NewBox(SuccessMessage, "Run succeeded").
		WithWidth(60).
		AddKeyValue("Run", "run-abc").
		AddLine("3/3 tasks done").
		Render()

	assert.Contains(t, out, "Run succeeded")
	assert.Contains(t, out, "Run: run-abc")
	assert.Contains(t, out, "3/3 tasks done")
	assert.Contains(t, out, "✓")
	assert.Len(t, strings.Split(out, "\n"), 5)
}

func TestBox_WrapsLongLines(t *testing.T) {
	long := strings.Repeat("word ", 20)
	out := NewBox(ErrorMessage, "Run failed").WithWidth(30).AddLine(long).Render()

	for _, line := range strings.Split(out, "\n") {
		assert.NotContains(t, line, strings.TrimSpace(long))
	}
	assert.Greater(t, len(strings.Split(out, "\n")), 4)
}
