package retriever

import (
	"fmt"

	"github.com/blevesearch/bleve"

	"github.com/docsense/docsense/models"
)

// Index is a memory-only BM25 index over one document's chunks. It
// satisfies Searcher with the same response shape as the lexical baseline,
// so the QA composer does not care which one produced the hits.
type Index struct {
	idx   bleve.Index
	texts map[string]string
}

// NewIndex builds an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	return &Index{idx: idx, texts: map[string]string{}}, nil
}

type indexedChunk struct {
	Text string `json:"text"`
}

// Add indexes the chunks. Chunks are immutable, so re-adding an id is not
// supported; build a fresh Index on reprocessing.
func (x *Index) Add(chunks []models.TextChunk) error {
	batch := x.idx.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ChunkID, indexedChunk{Text: c.Text}); err != nil {
			return fmt.Errorf("indexing chunk %s: %w", c.ChunkID, err)
		}
		x.texts[c.ChunkID] = c.Text
	}
	return x.idx.Batch(batch)
}

// Search implements Searcher. The chunks argument is ignored; the index
// already holds the document.
func (x *Index) Search(query string, _ []models.TextChunk, topK int) ([]models.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), topK, 0, false)
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	var out []models.SearchHit
	for i, hit := range res.Hits {
		out = append(out, models.SearchHit{
			ChunkID: hit.ID,
			Text:    x.texts[hit.ID],
			Score:   hit.Score,
			Rank:    i + 1,
		})
	}
	return out, nil
}

// Close releases the index resources.
func (x *Index) Close() error { return x.idx.Close() }
