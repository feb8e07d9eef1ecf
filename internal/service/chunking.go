package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how documents are split before embedding.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig sizes chunks for retrieval-augmented chat: a handful of
// chunks must fit the system prompt together.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1000,
		MinChars:  300,
		Overlap:   150,
		MaxChunks: 500,
	}
}

// chunkText packs whole paragraphs into chunks of at most MaxChars runes.
// Paragraphs longer than that are cut at whitespace with Overlap runes repeated.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if len([]rune(clean)) <= cfg.MaxChars {
		return []string{clean}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, para := range splitParagraphs(clean) {
		n := len([]rune(para))
		if n > cfg.MaxChars {
			flush()
			chunks = append(chunks, windowChunks([]rune(para), cfg)...)
			continue
		}
		if curLen > 0 && curLen+2+n > cfg.MaxChars {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(para)
		curLen += n
	}
	flush()

	if cfg.MaxChunks > 0 && len(chunks) > cfg.MaxChunks {
		chunks = chunks[:cfg.MaxChunks]
	}
	return chunks
}

func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func windowChunks(runes []rune, cfg ChunkConfig) []string {
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			minCut := start + cfg.MinChars
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
