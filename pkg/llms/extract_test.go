package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_Direct(t *testing.T) {
	m, err := ExtractJSON(`{"intent": "balance_lookup", "confidence": 0.9}`)
	require.NoError(t, err)
	assert.Equal(t, "balance_lookup", m["intent"])
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	content := "```json\n{\"intent\": \"spend_by_time\"}\n```"
	m, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "spend_by_time", m["intent"])
}

func TestExtractJSON_BareFence(t *testing.T) {
	content := "```\n{\"sql\": \"SELECT 1\"}\n```"
	m, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", m["sql"])
}

func TestExtractJSON_EmbeddedInProse(t *testing.T) {
	content := `Sure! Here is the plan you asked for:

{"intent": "top_merchants", "entities": {"merchants": ["starbucks"]}}

Let me know if you need anything else.`
	m, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "top_merchants", m["intent"])
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	content := `prefix {"a": {"b": {"c": 1}}, "d": "x{y}z"} suffix`
	m, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "x{y}z", m["d"])
}

func TestExtractJSON_TotalFailure(t *testing.T) {
	_, err := ExtractJSON("no json here at all")
	assert.Error(t, err)
}

func TestDecode_WeakTyping(t *testing.T) {
	type target struct {
		Confidence float64 `mapstructure:"confidence"`
		Intent     string  `mapstructure:"intent"`
	}

	raw, err := ExtractJSON(`{"intent": "unknown", "confidence": "0.5", "extra_key": true}`)
	require.NoError(t, err)

	var out target
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, 0.5, out.Confidence)
	assert.Equal(t, "unknown", out.Intent)
}

func TestDecode_NumbersNormalize(t *testing.T) {
	type target struct {
		Value float64 `mapstructure:"value"`
	}

	raw, err := ExtractJSON(`{"value": 42}`)
	require.NoError(t, err)

	var out target
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, 42.0, out.Value)
}
