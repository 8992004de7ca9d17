package models

import (
	"errors"
	"time"
)

// ErrDocumentNotFound is returned for any operation on an id that was never
// created, has expired, was evicted or was deleted. Callers cannot and need
// not distinguish those causes.
var ErrDocumentNotFound = errors.New("document not found")

// Status is the document lifecycle state. It only moves forward:
// pending -> processing -> {completed, failed}. A session may be explicitly
// reprocessed, which resets it to pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s ends a processing attempt.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PageContent is one logical page of extracted text. Immutable once
// chunking begins.
type PageContent struct {
	PageNumber int    `json:"page_number"` // 1-based
	Text       string `json:"text"`
	IsScanned  bool   `json:"is_scanned"`
}

// TextChunk is the unit of retrieval: a bounded, possibly overlapping window
// of the normalized document text. Chunks are never mutated after creation,
// only replaced wholesale on reprocessing.
type TextChunk struct {
	ChunkID    string `json:"chunk_id"`
	Text       string `json:"text"`
	PageNumber int    `json:"page_number,omitempty"` // 0 when unattributed
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	Index      int    `json:"index"`
	CharCount  int    `json:"char_count"`
	WordCount  int    `json:"word_count"`
}

// Category identifies an entity class. The set is closed; extraction output
// is one ordered list per category.
type Category string

const (
	CategoryDate         Category = "date"
	CategoryAmount       Category = "amount"
	CategoryEmail        Category = "email"
	CategoryPhone        Category = "phone"
	CategoryIdentifier   Category = "identifier"
	CategoryPerson       Category = "person"
	CategoryOrganization Category = "organization"
)

// Categories lists all entity categories in their fixed display order.
func Categories() []Category {
	return []Category{
		CategoryDate, CategoryAmount, CategoryEmail, CategoryPhone,
		CategoryIdentifier, CategoryPerson, CategoryOrganization,
	}
}

// Entity is one extracted match. Confidence is a static per-category prior,
// not derived from match quality; do not treat it as calibrated.
type Entity struct {
	Category   Category `json:"category"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	PageNumber int      `json:"page_number,omitempty"`
}

// Entities groups extraction output per category. One field per category so
// the shape is fixed at compile time rather than keyed by string.
type Entities struct {
	Dates         []Entity `json:"dates"`
	Amounts       []Entity `json:"amounts"`
	Emails        []Entity `json:"emails"`
	Phones        []Entity `json:"phones"`
	Identifiers   []Entity `json:"identifiers"`
	Persons       []Entity `json:"persons"`
	Organizations []Entity `json:"organizations"`
}

// ByCategory returns the list for c.
func (e Entities) ByCategory(c Category) []Entity {
	switch c {
	case CategoryDate:
		return e.Dates
	case CategoryAmount:
		return e.Amounts
	case CategoryEmail:
		return e.Emails
	case CategoryPhone:
		return e.Phones
	case CategoryIdentifier:
		return e.Identifiers
	case CategoryPerson:
		return e.Persons
	case CategoryOrganization:
		return e.Organizations
	}
	return nil
}

// Total counts matches across all categories.
func (e Entities) Total() int {
	n := 0
	for _, c := range Categories() {
		n += len(e.ByCategory(c))
	}
	return n
}

// Summary is summarization output. Delegated tells which branch produced it:
// true for the LLM collaborator, false for the extractive fallback, in which
// case FallbackReason says why the collaborator was skipped or failed.
type Summary struct {
	Text           string   `json:"text"`
	KeyPoints      []string `json:"key_points"`
	Delegated      bool     `json:"delegated"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
}

// Progress is an ephemeral, overwritten processing snapshot. It may be stale
// or absent if no update has happened yet.
type Progress struct {
	DocID       string `json:"doc_id"`
	Status      Status `json:"status"`
	Percent     int    `json:"percent"` // 0-100
	CurrentStep string `json:"current_step"`
	Message     string `json:"message,omitempty"`
}

// QAMessage is one turn of a document conversation, ordered by append time.
type QAMessage struct {
	Role    string    `json:"role"` // "user" | "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// SearchHit is one retrieval result, shared by the lexical retriever and any
// substituted index collaborator.
type SearchHit struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// Answer is the QA composer output for one question.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}
