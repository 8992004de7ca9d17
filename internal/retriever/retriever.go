// Package retriever scores document chunks against a query. The lexical
// token-overlap scorer is the required baseline; a bleve-backed index
// satisfies the same contract and may be substituted, with lexical as the
// fallback whenever the index is absent or errors.
package retriever

import (
	"math"
	"sort"

	"github.com/docsense/docsense/internal/textutil"
	"github.com/docsense/docsense/models"
)

// Searcher is the retrieval contract. Implementations return ranked hits;
// chunks with no relation to the query never appear in the result.
type Searcher interface {
	Search(query string, chunks []models.TextChunk, topK int) ([]models.SearchHit, error)
}

// Lexical is the baseline scorer: for each chunk with a non-empty token
// intersection with the query,
//
//	score = 0.75*|overlap|/|query tokens| + 0.25*|overlap|/|chunk tokens|
//
// rounded to 4 decimals. Zero-overlap chunks are excluded entirely, not
// scored as zero.
type Lexical struct{}

// Search implements Searcher. It never fails.
func (Lexical) Search(query string, chunks []models.TextChunk, topK int) ([]models.SearchHit, error) {
	return Retrieve(chunks, query, topK), nil
}

// Retrieve is the lexical scorer as a plain function.
func Retrieve(chunks []models.TextChunk, query string, topK int) []models.SearchHit {
	if topK <= 0 {
		return nil
	}
	qset := textutil.TokenSet(query)
	if len(qset) == 0 {
		return nil
	}

	var hits []models.SearchHit
	for _, c := range chunks {
		ctoks := textutil.Tokenize(c.Text)
		if len(ctoks) == 0 {
			continue
		}
		cset := map[string]struct{}{}
		for _, t := range ctoks {
			cset[t] = struct{}{}
		}
		overlap := 0
		for t := range qset {
			if _, ok := cset[t]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		lexical := float64(overlap) / float64(len(qset))
		density := float64(overlap) / float64(len(cset))
		score := math.Round((0.75*lexical+0.25*density)*10000) / 10000
		hits = append(hits, models.SearchHit{
			ChunkID: c.ChunkID,
			Text:    c.Text,
			Score:   score,
		})
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}
