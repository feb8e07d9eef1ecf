package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Short(t *testing.T) {
	assert.Nil(t, chunkText("   \n ", DefaultChunkConfig()))
	assert.Equal(t, []string{"Opening hours: nine to five."}, chunkText("  Opening hours: nine to five.\n", DefaultChunkConfig()))
}

func TestChunkText_PacksParagraphs(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 30, MinChars: 10, Overlap: 5}
	text := "first paragraph\n\nsecond one\n\nthird paragraph here"

	chunks := chunkText(text, cfg)

	assert.Equal(t, []string{"first paragraph\n\nsecond one", "third paragraph here"}, chunks)
}

func TestChunkText_SplitsLongParagraph(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 50, MinChars: 20, Overlap: 10}
	words := strings.Repeat("lorem ipsum ", 30)

	chunks := chunkText(words, cfg)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 50)
		assert.False(t, strings.HasPrefix(c, " "))
	}
}

func TestChunkText_MaxChunks(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 10, MinChars: 2, Overlap: 0, MaxChunks: 3}
	text := strings.Repeat("abcdefgh\n\n", 10)

	assert.Len(t, chunkText(text, cfg), 3)
}
