// Package retrieval scores document chunks against a user query by keyword
// frequency and returns the best matches.
package retrieval

import (
	"sort"
	"strings"
)

// DefaultTopK bounds how many chunks a retrieval returns.
const DefaultTopK = 3

const punctuation = `.,?!;:()"'`

// minTermLen filters out short tokens that behave like stopwords.
const minTermLen = 3

// ScoredChunk pairs a chunk with its relevance score for a query.
type ScoredChunk struct {
	Text  string
	Score int
}

// Retriever finds the chunks most relevant to a query. Scoring is plain
// term frequency: the score of a chunk is the summed occurrence count of
// every query term, matched case-insensitively as a literal substring.
type Retriever struct {
	topK int
}

// New creates a Retriever returning at most topK chunks per query.
// If topK <= 0, DefaultTopK is used.
func New(topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{topK: topK}
}

// Retrieve returns up to topK chunks ordered by descending score, ties
// preserving original chunk order. A query that produces no usable terms,
// or terms that match nothing, yields an empty result; callers must treat
// that as "no relevant excerpts".
func (r *Retriever) Retrieve(query string, chunks []string) []string {
	scored := r.Score(query, chunks)
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Text)
	}
	return out
}

// Score returns the scored, ordered retrieval result with zero-score chunks
// dropped.
func (r *Retriever) Score(query string, chunks []string) []ScoredChunk {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil
	}

	var scored []ScoredChunk
	for _, chunk := range chunks {
		lower := strings.ToLower(chunk)
		score := 0
		for _, term := range terms {
			// Literal substring count; query terms are never treated
			// as patterns.
			score += strings.Count(lower, term)
		}
		if score > 0 {
			scored = append(scored, ScoredChunk{Text: chunk, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	return scored
}

// Terms normalizes a query into its searchable terms: lower-cased,
// whitespace-split, surrounding punctuation stripped, and tokens of
// minTermLen runes or fewer discarded.
func Terms(query string) []string {
	var terms []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(tok)) <= minTermLen {
			continue
		}
		tok = strings.Trim(tok, punctuation)
		if tok != "" {
			terms = append(terms, tok)
		}
	}
	return terms
}
