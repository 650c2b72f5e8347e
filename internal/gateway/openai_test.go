package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalResponse_CleanJSON(t *testing.T) {
	var resp extractionResponse
	err := unmarshalResponse(`{"license_number":"G-123","confidence":0.95}`, &resp)
	require.NoError(t, err)
	assert.Equal(t, "G-123", resp.LicenseNumber)
	assert.InDelta(t, 0.95, resp.Confidence, 0.001)
}

func TestUnmarshalResponse_ProseWrapped(t *testing.T) {
	content := "Here is the extracted data:\n```json\n{\"intent\":\"confirm\",\"confidence\":0.9}\n```\nLet me know if you need anything else."

	var resp intentResponse
	err := unmarshalResponse(content, &resp)
	require.NoError(t, err)
	assert.Equal(t, "confirm", resp.Intent)
}

func TestUnmarshalResponse_NoJSON(t *testing.T) {
	var resp intentResponse
	err := unmarshalResponse("I could not read the document.", &resp)
	require.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"a":1}`,
			want:    `{"a":1}`,
		},
		{
			name:    "nested braces",
			content: `result: {"a":{"b":2}} done`,
			want:    `{"a":{"b":2}}`,
		},
		{
			name:    "braces inside strings",
			content: `{"text":"has } brace"}`,
			want:    `{"text":"has } brace"}`,
		},
		{
			name:    "escaped quotes inside strings",
			content: `{"text":"quote \" and } brace"}`,
			want:    `{"text":"quote \" and } brace"}`,
		},
		{
			name:    "unterminated object",
			content: `{"a":1`,
			want:    "",
		},
		{
			name:    "no object at all",
			content: "plain text",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.content))
		})
	}
}
