// Package chunker splits corpus documents into bounded-size paragraph chunks.
package chunker

import (
	"regexp"
	"strings"
)

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// Splitter splits raw text into chunks along blank-line paragraph boundaries.
// Paragraphs are accumulated greedily until adding the next one would exceed
// maxChunkSize, then the running chunk is flushed. A single paragraph longer
// than maxChunkSize becomes its own oversized chunk; it is never re-split.
type Splitter struct {
	maxChunkSize int
}

// NewSplitter creates a splitter with the given maximum chunk size in bytes.
func NewSplitter(maxChunkSize int) *Splitter {
	return &Splitter{maxChunkSize: maxChunkSize}
}

// Split returns the ordered chunks of text. Empty paragraphs are dropped.
// Returns nil when the text contains no non-empty paragraphs.
func (s *Splitter) Split(text string) []string {
	paragraphs := paragraphSep.Split(text, -1)

	var chunks []string
	var current string
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current != "" && len(current)+len("\n\n")+len(p) > s.maxChunkSize {
			chunks = append(chunks, current)
			current = p
			continue
		}
		if current == "" {
			current = p
		} else {
			current += "\n\n" + p
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
