package qa

import (
	"strings"
	"testing"

	"github.com/docsense/docsense/models"
)

func TestComposeNoHits(t *testing.T) {
	t.Parallel()

	ans := Compose("what is the total?", nil)
	if ans.Answer != NoEvidenceAnswer {
		t.Fatalf("unexpected answer: %q", ans.Answer)
	}
	if len(ans.Sources) != 0 {
		t.Fatalf("expected no sources, got %v", ans.Sources)
	}
	if ans.Confidence != 0.0 {
		t.Fatalf("expected zero confidence, got %v", ans.Confidence)
	}
}

func TestComposeCollectsMatchingSentences(t *testing.T) {
	t.Parallel()

	hits := []models.SearchHit{
		{ChunkID: "c1", Text: "Payment terms are net thirty. The invoice total is 1800 dollars. Delivery happens on Friday.", Score: 0.8, Rank: 1},
		{ChunkID: "c2", Text: "The total includes applicable taxes. Nothing else here.", Score: 0.4, Rank: 2},
	}
	ans := Compose("what is the invoice total?", hits)

	if !strings.Contains(ans.Answer, "invoice total is 1800 dollars") {
		t.Fatalf("answer missing matching sentence: %q", ans.Answer)
	}
	if !strings.Contains(ans.Answer, "total includes applicable taxes") {
		t.Fatalf("answer should include second matching sentence: %q", ans.Answer)
	}
	if len(ans.Sources) != 2 || ans.Sources[0] != "c1" || ans.Sources[1] != "c2" {
		t.Fatalf("unexpected sources: %v", ans.Sources)
	}
}

func TestComposeStopsAtTwoSentences(t *testing.T) {
	t.Parallel()

	hits := []models.SearchHit{
		{ChunkID: "c1", Text: "The budget is fixed. The budget was approved. The budget covers travel.", Score: 0.9, Rank: 1},
	}
	ans := Compose("budget", hits)

	if got := strings.Count(ans.Answer, "budget"); got != 2 {
		t.Fatalf("expected exactly two sentences, answer: %q", ans.Answer)
	}
}

func TestComposeFallbackExcerpt(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("lorem ipsum dolor sit amet consectetur ", 20)
	hits := []models.SearchHit{
		{ChunkID: "c9", Text: long, Score: 0.5, Rank: 1},
	}
	ans := Compose("zebra quantum", hits)

	if len(ans.Answer) > fallbackExcerpt+3 {
		t.Fatalf("excerpt too long: %d chars", len(ans.Answer))
	}
	if !strings.HasSuffix(ans.Answer, "...") {
		t.Fatalf("expected truncated excerpt, got %q", ans.Answer)
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "c9" {
		t.Fatalf("fallback should cite the top chunk, got %v", ans.Sources)
	}
}

func TestComposeConfidenceBounds(t *testing.T) {
	t.Parallel()

	mk := func(score float64) models.Answer {
		return Compose("budget", []models.SearchHit{{ChunkID: "c1", Text: "The budget is fixed.", Score: score, Rank: 1}})
	}

	if got := mk(0.5).Confidence; got != 0.65 {
		t.Fatalf("expected 0.65, got %v", got)
	}
	if got := mk(0.1).Confidence; got != 0.45 {
		t.Fatalf("expected floor 0.45, got %v", got)
	}
	if got := mk(0.95).Confidence; got != 0.99 {
		t.Fatalf("expected ceiling 0.99, got %v", got)
	}
}

func TestSuggestedQuestions(t *testing.T) {
	t.Parallel()

	base := SuggestedQuestions("invoice.pdf", models.Entities{})
	if len(base) != 3 {
		t.Fatalf("expected 3 base questions, got %d", len(base))
	}
	if !strings.Contains(base[0], "invoice.pdf") {
		t.Fatalf("first question should mention the filename: %q", base[0])
	}

	full := SuggestedQuestions("invoice.pdf", models.Entities{
		Organizations: []models.Entity{{Category: models.CategoryOrganization, Value: "Acme"}},
		Persons:       []models.Entity{{Category: models.CategoryPerson, Value: "John"}},
	})
	if len(full) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(full))
	}
}
