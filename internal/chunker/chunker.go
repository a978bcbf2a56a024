// Package chunker splits raw document text into bounded-size segments used
// as retrieval units.
package chunker

import "strings"

// DefaultChunkSize is the maximum chunk length in bytes.
const DefaultChunkSize = 800

// Split breaks text into chunks of at most maxSize bytes. Tokens are
// whitespace-separated words; chunks are filled greedily and joined with
// single spaces, so boundaries may fall mid-sentence. A single token longer
// than maxSize becomes its own oversized chunk rather than being split.
// If maxSize <= 0, DefaultChunkSize is used.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder
	for _, tok := range tokens {
		if buf.Len() == 0 {
			buf.WriteString(tok)
			continue
		}
		// +1 for the joining space.
		if buf.Len()+1+len(tok) > maxSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
			buf.WriteString(tok)
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(tok)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
