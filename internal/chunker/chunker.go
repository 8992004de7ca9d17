// Package chunker splits normalized document text into overlapping,
// page-attributed windows bounded by sentence boundaries. Chunks are the
// unit of retrieval.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/docsense/docsense/internal/textutil"
	"github.com/docsense/docsense/models"
)

// Config carries the chunking knobs. Zero values fall back to the service
// defaults.
type Config struct {
	MaxChars int
	Overlap  int
}

func (c Config) withDefaults() Config {
	if c.MaxChars <= 0 {
		c.MaxChars = 1000
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChars {
		c.Overlap = 200
	}
	return c
}

// Split cuts text into chunk strings. Sentences are accumulated greedily;
// when the next sentence would push the buffer past maxChars the buffer is
// emitted and the next one is seeded with the emitted buffer's last overlap
// characters plus the triggering sentence. A single sentence longer than
// maxChars is emitted whole: the algorithm never cuts inside a sentence,
// which is a deliberate simplicity trade-off.
func Split(text string, maxChars, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	buf := sentences[0]
	for _, s := range sentences[1:] {
		if len(buf)+1+len(s) > maxChars {
			chunks = append(chunks, buf)
			tail := buf
			if len(tail) > overlap {
				tail = tail[len(tail)-overlap:]
			}
			buf = tail + " " + s
			continue
		}
		buf += " " + s
	}
	if buf != "" {
		chunks = append(chunks, buf)
	}
	return chunks
}

// Chunks runs Split and wraps the results as TextChunks with monotonic ids,
// character offsets into the concatenated text and best-effort page
// attribution derived from the page lengths.
func Chunks(text string, pages []models.PageContent, cfg Config) []models.TextChunk {
	cfg = cfg.withDefaults()
	parts := Split(text, cfg.MaxChars, cfg.Overlap)
	if len(parts) == 0 {
		return nil
	}

	pageMap := buildPageMap(pages)
	out := make([]models.TextChunk, 0, len(parts))
	pos := 0
	for i, part := range parts {
		out = append(out, models.TextChunk{
			ChunkID:    fmt.Sprintf("chunk_%04d_%s", i, uuid.NewString()[:8]),
			Text:       part,
			PageNumber: pageForPosition(pos, pageMap),
			StartChar:  pos,
			EndChar:    pos + len(part),
			Index:      i,
			CharCount:  len(part),
			WordCount:  len(strings.Fields(part)),
		})
		advance := len(part) - cfg.Overlap
		if advance < 1 {
			advance = len(part)
		}
		next := pos + advance
		// Page joins are two characters wide while sentence re-joins are
		// one, so each page boundary crossed costs an extra character.
		for _, m := range pageMap {
			if m.pos > pos && m.pos <= next {
				next++
			}
		}
		pos = next
	}
	return out
}

type pageMark struct {
	pos  int
	page int
}

// buildPageMap maps character positions in the concatenated text to page
// numbers, assuming pages are joined with a two-character separator.
func buildPageMap(pages []models.PageContent) []pageMark {
	var marks []pageMark
	pos := 0
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		marks = append(marks, pageMark{pos: pos, page: p.PageNumber})
		pos += len(p.Text) + 2
	}
	return marks
}

// pageForPosition returns the page whose start is the closest at or before
// position, or 0 when no page info exists.
func pageForPosition(position int, marks []pageMark) int {
	if len(marks) == 0 {
		return 0
	}
	i := sort.Search(len(marks), func(i int) bool { return marks[i].pos > position })
	if i == 0 {
		return marks[0].page
	}
	return marks[i-1].page
}
