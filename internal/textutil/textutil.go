// Package textutil holds the text primitives shared by the processing
// pipeline: whitespace normalization, sentence splitting and tokenization.
package textutil

import (
	"regexp"
	"strings"
)

var (
	spaceRuns   = regexp.MustCompile(`[^\S\n]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
	wordRe      = regexp.MustCompile(`\w+`)
	sentenceRe  = regexp.MustCompile(`([.!?])\s+`)
)

// ligatures and typographic characters commonly produced by PDF text layers
// and OCR output, mapped to plain ASCII equivalents.
var ligatures = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬀ", "ff",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	" ", " ",
)

// Normalize collapses runs of non-newline whitespace to a single space,
// collapses three or more consecutive newlines to exactly two, replaces
// non-breaking spaces and ligatures, and trims the result. It is idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = ligatures.Replace(s)
	s = spaceRuns.ReplaceAllString(s, " ")
	// Strip spaces hugging newlines so newline collapsing sees true runs.
	s = strings.ReplaceAll(s, " \n", "\n")
	s = strings.ReplaceAll(s, "\n ", "\n")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Sentences splits text on sentence-ending punctuation (. ! ?) followed by
// whitespace. The terminator stays attached to its sentence.
func Sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	parts := sentenceRe.Split(text, -1)
	terms := sentenceRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i < len(terms) {
			p += terms[i][1]
		}
		out = append(out, p)
	}
	return out
}

// stopWords is the list the original scoring heuristics ignore. Keep it in
// sync between summarization and retrieval so their token sets agree.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an is are was were be been being
		have has had do does did will would could should may might must shall
		can need this that these those what which who whom where when why how
		of in to for on with at by from as about into through during before
		after above below between under again further then once and but or
		nor so yet both either neither not only own same than too very just
		it its i me my you your he she we they`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether w (already lower-cased) carries no lexical
// signal for scoring purposes.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Tokenize lower-cases text and returns its word tokens with stop words and
// tokens shorter than three characters removed.
func Tokenize(text string) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 3 || IsStopWord(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// TokenSet is Tokenize collapsed into a set for overlap arithmetic.
func TokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range Tokenize(text) {
		set[w] = struct{}{}
	}
	return set
}

// Words returns the raw lower-cased word tokens of text, stop words
// included. Used where frequency mass matters rather than signal.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}
