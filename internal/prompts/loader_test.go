package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	prompt, err := Get("feedback.json", "interview-feedback")
	require.NoError(t, err)
	assert.Contains(t, prompt, "total_score")
	assert.Contains(t, prompt, "{{.Material}}")
}

func TestGet_Errors(t *testing.T) {
	_, err := Get("nonexistent.json", "some-key")
	assert.ErrorContains(t, err, "not found")

	_, err = Get("feedback.json", "nonexistent-key")
	assert.ErrorContains(t, err, `"nonexistent-key"`)
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{.B}} and {{.A}} then {{.B}} again, {{ .Spaced }} ignored")
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestFormat(t *testing.T) {
	out := Format("Level {{.Level}}: {{.Mode}} {{.Unknown}}", map[string]string{
		"Level": "2",
		"Mode":  "voice",
	})
	assert.Equal(t, "Level 2: voice {{.Unknown}}", out)
}

func TestFormat_ValuesAreNotExpanded(t *testing.T) {
	out := Format("{{.A}}/{{.B}}", map[string]string{"A": "{{.B}}", "B": "x"})
	assert.Equal(t, "{{.B}}/x", out)
}

func TestRender(t *testing.T) {
	out, err := Render("feedback.json", "interview-feedback", map[string]string{
		"Level":      "3",
		"Mode":       "text",
		"Categories": "Clarity, Depth",
		"Material":   "Q1. Why? A: Because {{.Level}}",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "level 3")
	assert.Contains(t, out, "Clarity, Depth")
	assert.Contains(t, out, "Because {{.Level}}")
	assert.NotContains(t, out, "{{.Material}}")
}

func TestRender_MissingValues(t *testing.T) {
	_, err := Render("feedback.json", "interview-feedback", map[string]string{"Level": "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Categories")
	assert.Contains(t, err.Error(), "Material")
}

func TestList(t *testing.T) {
	keys, err := List("feedback.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"interview-feedback", "unanswered-placeholder"}, keys)
}
