package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	got, err := ExtractJSONObject("```json\n{\"a\": {\"b\": 1}}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, got)

	_, err = ExtractJSONObject("no json here")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "Title: x", StripCodeFence("```text\nTitle: x\n```"))
	assert.Equal(t, "plain", StripCodeFence("  plain  "))
}
