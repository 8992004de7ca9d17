package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/docsense/docsense/models"
)

func TestSplitEmptyInput(t *testing.T) {
	t.Parallel()
	if got := Split("", 1000, 200); got != nil {
		t.Fatalf("expected no chunks, got %#v", got)
	}
	if got := Split("   \n  ", 1000, 200); got != nil {
		t.Fatalf("expected no chunks for blank input, got %#v", got)
	}
}

func TestSplitShortInputSingleChunk(t *testing.T) {
	t.Parallel()
	text := "One short sentence. And another one."
	got := Split("  "+text+"  ", 1000, 200)
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
	if got[0] != text {
		t.Fatalf("chunk = %q, want trimmed input", got[0])
	}
}

func TestSplitRespectsMaxChars(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "Sentence number %d has a handful of words in it. ", i)
	}
	maxChars, overlap := 200, 40
	chunks := Split(sb.String(), maxChars, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > maxChars {
			t.Fatalf("chunk %d length %d exceeds max %d", i, len(c), maxChars)
		}
	}
}

func TestSplitOversizedSentenceEmittedWhole(t *testing.T) {
	t.Parallel()
	long := "This sentence keeps going " + strings.Repeat("and going ", 30) + "until it ends."
	text := "Short lead. " + long + " Short tail."
	chunks := Split(text, 100, 20)

	found := false
	for _, c := range chunks {
		if strings.Contains(c, long) {
			found = true
		}
	}
	if !found {
		t.Fatal("oversized sentence was split inside a sentence")
	}
}

func TestSplitOverlapSeedsNextChunk(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "Sentence %02d is here with several words. ", i)
	}
	overlap := 40
	chunks := Split(sb.String(), 200, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(tail) > overlap {
			tail = tail[len(tail)-overlap:]
		}
		if !strings.HasPrefix(chunks[i], tail+" ") {
			t.Fatalf("chunk %d does not start with the previous chunk's tail:\nprev tail %q\nchunk %q", i, tail, chunks[i])
		}
	}
}

func TestSplitCoverageReconstructsText(t *testing.T) {
	t.Parallel()
	var sentences []string
	for i := 0; i < 25; i++ {
		sentences = append(sentences, fmt.Sprintf("Sentence %02d carries some distinct words.", i))
	}
	text := strings.Join(sentences, " ")
	overlap := 50
	chunks := Split(text, 180, overlap)

	rebuilt := chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(tail) > overlap {
			tail = tail[len(tail)-overlap:]
		}
		rebuilt += chunks[i][len(tail):]
	}
	if rebuilt != text {
		t.Fatalf("chunks minus overlaps do not reconstruct the input:\nwant %q\ngot  %q", text, rebuilt)
	}
}

func TestChunksMetadataAndPages(t *testing.T) {
	t.Parallel()
	page1 := "First page sentence one. First page sentence two."
	page2 := "Second page sentence one. Second page sentence two."
	pages := []models.PageContent{
		{PageNumber: 1, Text: page1},
		{PageNumber: 2, Text: page2},
	}
	text := page1 + "\n\n" + page2

	chunks := Chunks(text, pages, Config{MaxChars: 60, Overlap: 10})
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if chunks[0].PageNumber != 1 {
		t.Fatalf("first chunk attributed to page %d", chunks[0].PageNumber)
	}
	last := chunks[len(chunks)-1]
	if last.PageNumber != 2 {
		t.Fatalf("last chunk attributed to page %d", last.PageNumber)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		if c.ChunkID == "" || c.CharCount != len(c.Text) {
			t.Fatalf("chunk metadata wrong: %+v", c)
		}
		if c.EndChar-c.StartChar != len(c.Text) {
			t.Fatalf("offset span mismatch: %+v", c)
		}
	}
	ids := map[string]bool{}
	for _, c := range chunks {
		if ids[c.ChunkID] {
			t.Fatalf("duplicate chunk id %s", c.ChunkID)
		}
		ids[c.ChunkID] = true
	}
}

func TestChunksOffsetsAccountForPageJoins(t *testing.T) {
	t.Parallel()
	pages := []models.PageContent{
		{PageNumber: 1, Text: "Alpha one here. Alpha two here."},
		{PageNumber: 2, Text: "Beta one here. Beta two here. Beta three over here."},
	}
	text := pages[0].Text + "\n\n" + pages[1].Text

	got := Chunks(text, pages, Config{MaxChars: 35, Overlap: 5})
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3: %#v", len(got), got)
	}

	// Chunk 1 starts at its overlap tail, still inside page 1.
	if got[1].StartChar != 26 || got[1].PageNumber != 1 {
		t.Fatalf("chunk 1 start = %d page %d, want 26 page 1", got[1].StartChar, got[1].PageNumber)
	}
	// Chunk 2's tail sits past the two-character page join; its offset must
	// land on the original text, not one short of it.
	if got[2].StartChar != 57 {
		t.Fatalf("chunk 2 start = %d, want 57", got[2].StartChar)
	}
	if got[2].PageNumber != 2 {
		t.Fatalf("chunk 2 page = %d, want 2", got[2].PageNumber)
	}
	if want := "here."; !strings.HasPrefix(text[got[2].StartChar:], want) {
		t.Fatalf("text at chunk 2 offset = %q, want prefix %q", text[got[2].StartChar:], want)
	}
}
