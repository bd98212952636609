package retrieval

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunk is a contiguous span of source document text with a stable identifier.
type Chunk struct {
	ChunkID string
	Content string
	Source  string
	Score   float64
}

// chunkSize is the soft character budget per chunk; sections are split once
// they exceed twice this budget.
const chunkSize = 200

var (
	sectionPattern  = regexp.MustCompile(`\n\n+`)
	sentencePattern = regexp.MustCompile(`[.!?]\s+`)
)

// chunkDocument splits a document into chunks: one chunk per blank-line
// section, with oversized sections re-split on sentence boundaries. Chunk IDs
// are "source::chunkN" with N counting from zero per document.
func chunkDocument(content, source string) []Chunk {
	var chunks []Chunk
	idx := 0

	add := func(text string) {
		chunks = append(chunks, Chunk{
			ChunkID: fmt.Sprintf("%s::chunk%d", source, idx),
			Content: text,
			Source:  source,
		})
		idx++
	}

	for _, section := range sectionPattern.Split(strings.TrimSpace(content), -1) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		if len(section) <= chunkSize*2 {
			add(section)
			continue
		}

		var current strings.Builder
		for _, sentence := range sentencePattern.Split(section, -1) {
			if current.Len()+len(sentence) < chunkSize*2 {
				current.WriteString(sentence)
				current.WriteString(". ")
				continue
			}
			if current.Len() > 0 {
				add(strings.TrimSpace(current.String()))
				current.Reset()
			}
			current.WriteString(sentence)
			current.WriteString(". ")
		}
		if current.Len() > 0 {
			add(strings.TrimSpace(current.String()))
		}
	}

	return chunks
}
