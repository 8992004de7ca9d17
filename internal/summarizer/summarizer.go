// Package summarizer produces an extractive document summary by
// term-frequency sentence ranking, optionally delegating to the LLM
// collaborator first. Collaborator failure is never an error: the result
// records which branch produced it.
package summarizer

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/docsense/docsense/internal/textutil"
	"github.com/docsense/docsense/models"
	"github.com/docsense/docsense/provider"
)

// Config bounds summary size. Zero values take the service defaults.
type Config struct {
	MaxSentences int
	MaxKeyPoints int
	// MaxPromptChars truncates text sent to the LLM collaborator.
	MaxPromptChars int
}

func (c Config) withDefaults() Config {
	if c.MaxSentences <= 0 {
		c.MaxSentences = 4
	}
	if c.MaxKeyPoints <= 0 {
		c.MaxKeyPoints = 5
	}
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = 15000
	}
	return c
}

// Summarizer ranks sentences and optionally delegates to an LLM provider.
// A nil provider means extractive-only operation.
type Summarizer struct {
	cfg    Config
	llm    provider.Provider
	logger *log.Logger
}

// New builds a summarizer. llm may be nil.
func New(cfg Config, llm provider.Provider, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUMMARIZER] ", log.LstdFlags)
	}
	return &Summarizer{cfg: cfg.withDefaults(), llm: llm, logger: logger}
}

const systemPrompt = "You are a document analyst. Summarize the supplied document " +
	"in a short paragraph, then list the most important points as lines " +
	"starting with \"- \". Use only information present in the document."

// Summarize produces a summary of text. It delegates to the LLM
// collaborator when one is configured and falls back to extractive ranking
// on any collaborator failure; the branch taken is recorded on the result.
func (s *Summarizer) Summarize(ctx context.Context, text string) models.Summary {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Summary{Text: "No content available for summarization."}
	}

	if s.llm != nil {
		if sum, err := s.delegate(ctx, text); err == nil {
			return sum
		} else {
			s.logger.Printf("llm summarization failed, using extractive fallback: %v", err)
			sum := s.Extractive(text)
			sum.FallbackReason = err.Error()
			return sum
		}
	}

	sum := s.Extractive(text)
	sum.FallbackReason = "no llm provider configured"
	return sum
}

func (s *Summarizer) delegate(ctx context.Context, text string) (models.Summary, error) {
	prompt := text
	if len(prompt) > s.cfg.MaxPromptChars {
		prompt = prompt[:s.cfg.MaxPromptChars] + "...[truncated]"
	}
	resp, err := s.llm.Chat(ctx, systemPrompt, prompt)
	if err != nil {
		return models.Summary{}, err
	}
	sum := parseDelegated(resp, s.cfg.MaxKeyPoints)
	sum.Delegated = true
	return sum, nil
}

// parseDelegated splits a plain-text completion into summary prose and
// bullet key points.
func parseDelegated(resp string, maxPoints int) models.Summary {
	var prose []string
	var points []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if trimmed, ok := strings.CutPrefix(line, "- "); ok {
			if len(points) < maxPoints {
				points = append(points, strings.TrimSpace(trimmed))
			}
			continue
		}
		if trimmed, ok := strings.CutPrefix(line, "* "); ok {
			if len(points) < maxPoints {
				points = append(points, strings.TrimSpace(trimmed))
			}
			continue
		}
		prose = append(prose, line)
	}
	return models.Summary{
		Text:      strings.Join(prose, " "),
		KeyPoints: points,
	}
}

// Extractive ranks sentences by the mean global frequency of their own
// tokens: score = sum(tokenFrequency) / tokenCount. This is a relevance
// proxy, not a TF-IDF. The top MaxSentences sentences are re-ordered by
// original position before joining; key points keep rank order.
func (s *Summarizer) Extractive(text string) models.Summary {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return models.Summary{Text: text}
	}
	if len(sentences) <= s.cfg.MaxSentences {
		return models.Summary{
			Text:      text,
			KeyPoints: keyPoints(sentences, s.cfg.MaxKeyPoints),
		}
	}

	freq := map[string]int{}
	for _, tok := range textutil.Tokenize(text) {
		freq[tok]++
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i, sent := range sentences {
		toks := textutil.Tokenize(sent)
		if len(toks) == 0 {
			scores[i] = ranked{idx: i}
			continue
		}
		sum := 0
		for _, t := range toks {
			sum += freq[t]
		}
		scores[i] = ranked{idx: i, score: float64(sum) / float64(len(toks))}
	}

	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })
	top := scores[:s.cfg.MaxSentences]

	points := make([]string, 0, len(top))
	for _, r := range top {
		points = append(points, strings.TrimRight(sentences[r.idx], ".!? "))
	}
	if len(points) > s.cfg.MaxKeyPoints {
		points = points[:s.cfg.MaxKeyPoints]
	}

	ordered := append([]ranked(nil), top...)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].idx < ordered[b].idx })
	parts := make([]string, 0, len(ordered))
	for _, r := range ordered {
		parts = append(parts, sentences[r.idx])
	}

	return models.Summary{
		Text:      strings.Join(parts, " "),
		KeyPoints: points,
	}
}

func keyPoints(sentences []string, max int) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, strings.TrimRight(s, ".!? "))
		if len(out) >= max {
			break
		}
	}
	return out
}
