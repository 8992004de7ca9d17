// Package qa turns retrieval hits into an answer with sources and a
// confidence score.
package qa

import (
	"strings"

	"github.com/docsense/docsense/internal/textutil"
	"github.com/docsense/docsense/models"
)

// NoEvidenceAnswer is returned when no chunk shares a single token with the
// question.
const NoEvidenceAnswer = "The document does not contain enough information to answer that question."

const (
	maxAnswerSentences = 2
	fallbackExcerpt    = 320
	minConfidence      = 0.45
	maxConfidence      = 0.99
)

// Compose builds the answer from ranked retrieval hits. In rank order it
// collects sentences that share tokens with the question, stopping at two;
// when no sentence intersects it falls back to the top hit's leading
// excerpt. Confidence derives from the top hit's score.
func Compose(question string, hits []models.SearchHit) models.Answer {
	if len(hits) == 0 {
		return models.Answer{Answer: NoEvidenceAnswer, Sources: []string{}, Confidence: 0.0}
	}

	qset := textutil.TokenSet(question)
	var sentences []string
	var sources []string

	for _, hit := range hits {
		contributed := false
		for _, sent := range textutil.Sentences(hit.Text) {
			if len(sentences) >= maxAnswerSentences {
				break
			}
			if intersects(qset, sent) {
				sentences = append(sentences, sent)
				contributed = true
			}
		}
		if contributed {
			sources = append(sources, hit.ChunkID)
		}
		if len(sentences) >= maxAnswerSentences {
			break
		}
	}

	answer := strings.Join(sentences, " ")
	if answer == "" {
		answer = excerpt(hits[0].Text, fallbackExcerpt)
		sources = []string{hits[0].ChunkID}
	}

	return models.Answer{
		Answer:     answer,
		Sources:    sources,
		Confidence: clamp(hits[0].Score+0.15, minConfidence, maxConfidence),
	}
}

// SuggestedQuestions proposes follow-ups a user might ask, informed by
// which entity categories were found.
func SuggestedQuestions(filename string, ents models.Entities) []string {
	questions := []string{
		"What is the main purpose of " + filename + "?",
		"What are the most important dates and deadlines?",
		"Which monetary values look most critical?",
	}
	if len(ents.Organizations) > 0 {
		questions = append(questions, "Which organizations are involved in this document?")
	}
	if len(ents.Persons) > 0 {
		questions = append(questions, "Who signed or approved this document?")
	}
	if len(questions) > 5 {
		questions = questions[:5]
	}
	return questions
}

func intersects(qset map[string]struct{}, sentence string) bool {
	for _, t := range textutil.Tokenize(sentence) {
		if _, ok := qset[t]; ok {
			return true
		}
	}
	return false
}

func excerpt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return strings.TrimSpace(text[:n]) + "..."
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
