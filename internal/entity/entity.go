// Package entity does pattern-based extraction of typed entities: dates,
// amounts, identifiers, emails, phones, persons and organizations. Matches
// carry a fixed per-category confidence prior, not a data-derived score.
package entity

import (
	"regexp"
	"strings"

	"github.com/docsense/docsense/models"
)

// maxPerCategory caps output size on pathological input.
const maxPerCategory = 10

// confidence priors per category. These reflect how selective the patterns
// are, not the quality of an individual match.
var priors = map[models.Category]float64{
	models.CategoryDate:         0.90,
	models.CategoryAmount:       0.90,
	models.CategoryEmail:        0.98,
	models.CategoryPhone:        0.85,
	models.CategoryIdentifier:   0.95,
	models.CategoryPerson:       0.60,
	models.CategoryOrganization: 0.60,
}

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[-/]\d{2}[-/]\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+\d{1,2},?\s+\d{4}\b`),
	}
	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:\$|USD)\s*[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`(?i)(?:€|EUR)\s*[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`(?i)(?:₹|Rs\.?|INR)\s*[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`(?i)[\d,]+(?:\.\d{2})?\s*(?:USD|EUR|INR)\b`),
	}
	emailPattern = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),
		regexp.MustCompile(`\+\d[\d\s-]{8,13}\d`),
	}
	identifierPatterns = []*regexp.Regexp{
		// Invoice / bill numbers introduced by a label.
		// Alternatives ordered longest-first: the matcher is leftmost-first,
		// and "no" matching the prefix of "number" would shift the capture.
		regexp.MustCompile(`(?i)(?:invoice|inv|bill)\s*(?:#|number|no\.?)?\s*:?\s*([A-Z0-9][-A-Z0-9/]{3,})`),
		// GSTIN and PAN style registration identifiers.
		regexp.MustCompile(`\b\d{2}[A-Z]{5}\d{4}[A-Z][A-Z\d]Z[A-Z\d]\b`),
		regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`),
	}
	personPattern = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	orgPattern    = regexp.MustCompile(`\b([A-Z][A-Za-z&]*(?:\s+[A-Z&][A-Za-z&]*){0,4}\s+(?:Inc|LLC|Ltd|Corp|Corporation|Company|Technologies|Solutions|GmbH)\.?)`)
)

// Extract runs every category's patterns over text. Matches are
// order-preserving deduplicated (first occurrence wins) and capped per
// category. Page numbers are attributed best-effort by locating the match
// in the page texts.
func Extract(text string, pages []models.PageContent) models.Entities {
	return models.Entities{
		Dates:         collect(models.CategoryDate, text, pages, datePatterns, 0),
		Amounts:       collect(models.CategoryAmount, text, pages, amountPatterns, 0),
		Emails:        collect(models.CategoryEmail, text, pages, []*regexp.Regexp{emailPattern}, 0),
		Phones:        collect(models.CategoryPhone, text, pages, phonePatterns, 0),
		Identifiers:   collect(models.CategoryIdentifier, text, pages, identifierPatterns, 1),
		Persons:       collect(models.CategoryPerson, text, pages, []*regexp.Regexp{personPattern}, 1),
		Organizations: collect(models.CategoryOrganization, text, pages, []*regexp.Regexp{orgPattern}, 1),
	}
}

// collect gathers matches for one category. group selects which capture
// group carries the value; 0 keeps the whole match.
func collect(cat models.Category, text string, pages []models.PageContent, patterns []*regexp.Regexp, group int) []models.Entity {
	var out []models.Entity
	seen := map[string]struct{}{}
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			value := m[0]
			if group > 0 && group < len(m) {
				value = m[group]
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			key := strings.ToLower(value)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, models.Entity{
				Category:   cat,
				Value:      value,
				Confidence: priors[cat],
				PageNumber: pageOf(value, pages),
			})
			if len(out) >= maxPerCategory {
				return out
			}
		}
	}
	return out
}

func pageOf(value string, pages []models.PageContent) int {
	for _, p := range pages {
		if strings.Contains(p.Text, value) {
			return p.PageNumber
		}
	}
	return 0
}
