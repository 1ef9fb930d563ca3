package corpus

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// DefaultChunkSize is the number of consecutive paragraphs grouped into one
// retrievable chunk.
const DefaultChunkSize = 4

// GroupParagraphs groups size consecutive paragraphs into newline-joined
// chunk texts. A trailing partial group still forms a chunk, so len(result)
// is always ceil(len(paragraphs)/size) and concatenating the chunks in order
// reproduces the original paragraph sequence.
func GroupParagraphs(paragraphs []string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks []string
	for start := 0; start < len(paragraphs); start += size {
		end := start + size
		if end > len(paragraphs) {
			end = len(paragraphs)
		}
		chunks = append(chunks, strings.Join(paragraphs[start:end], "\n"))
	}
	return chunks
}

// SplitLongParagraph breaks a paragraph longer than maxChars into
// sentence-aligned pieces, each at most maxChars where possible. Paragraphs
// within budget come back unchanged. When sentence segmentation fails the
// paragraph is returned whole rather than cut mid-word.
func SplitLongParagraph(paragraph string, maxChars int) []string {
	if maxChars <= 0 || len(paragraph) <= maxChars {
		return []string{paragraph}
	}

	doc, err := prose.NewDocument(paragraph,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return []string{paragraph}
	}

	var pieces []string
	var current strings.Builder
	for _, sent := range doc.Sentences() {
		text := strings.TrimSpace(sent.Text)
		if text == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(text)+1 > maxChars {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(text)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	if len(pieces) == 0 {
		return []string{paragraph}
	}
	return pieces
}

// NormalizeParagraphs trims whitespace, drops empty paragraphs, and splits
// any paragraph over maxChars into sentence-aligned pieces.
func NormalizeParagraphs(paragraphs []string, maxChars int) []string {
	var out []string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, SplitLongParagraph(p, maxChars)...)
	}
	return out
}
