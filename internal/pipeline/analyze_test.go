package pipeline

import (
	"testing"

	"github.com/phrazzld/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		lines int
		words int
	}{
		{name: "single line without newline", body: "hello", lines: 1, words: 1},
		{name: "trailing newline", body: "hello world\n", lines: 1, words: 2},
		{name: "several lines", body: "a b c\n\nd e\nf", lines: 4, words: 6},
		{name: "whitespace only", body: " \t\n", lines: 1, words: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := domain.Document{URL: "https://example.com", ContentType: "text/plain", Body: []byte(tc.body)}

			analysis, err := Analyze(doc)

			require.NoError(t, err)
			assert.Equal(t, "https://example.com", analysis.URL)
			assert.Equal(t, "text/plain", analysis.ContentType)
			assert.Equal(t, len(tc.body), analysis.Bytes)
			assert.Equal(t, tc.lines, analysis.Lines)
			assert.Equal(t, tc.words, analysis.Words)
			assert.Len(t, analysis.SHA256, 64)
		})
	}
}

func TestAnalyze_Digest(t *testing.T) {
	analysis, err := Analyze(domain.Document{Body: []byte("abc")})

	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", analysis.SHA256)
}

func TestAnalyze_Empty(t *testing.T) {
	_, err := Analyze(domain.Document{URL: "https://example.com"})

	assert.ErrorIs(t, err, ErrEmptyDocument)
}
