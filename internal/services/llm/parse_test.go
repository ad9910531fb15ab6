package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rewriteShape struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func TestParseJSONPlain(t *testing.T) {
	var out rewriteShape
	err := ParseJSON(`{"title":"A","summary":"B"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "A", out.Title)
	assert.Equal(t, "B", out.Summary)
}

func TestParseJSONCodeFence(t *testing.T) {
	response := "```json\n{\"title\":\"A\",\"summary\":\"B\"}\n```"
	var out rewriteShape
	require.NoError(t, ParseJSON(response, &out))
	assert.Equal(t, "A", out.Title)
}

func TestParseJSONBareFence(t *testing.T) {
	response := "```\n{\"title\":\"A\",\"summary\":\"B\"}\n```"
	var out rewriteShape
	require.NoError(t, ParseJSON(response, &out))
	assert.Equal(t, "B", out.Summary)
}

func TestParseJSONSurroundingProse(t *testing.T) {
	response := "Here is the rewritten item:\n{\"title\":\"A\",\"summary\":\"B\"}\nLet me know if you need changes."
	var out rewriteShape
	require.NoError(t, ParseJSON(response, &out))
	assert.Equal(t, "A", out.Title)
}

func TestParseJSONRejectsGarbage(t *testing.T) {
	var out rewriteShape
	assert.Error(t, ParseJSON("I cannot help with that.", &out))
	assert.Error(t, ParseJSON("", &out))
}
