// Package loader turns uploaded bytes into ordered pages of normalized text.
// It validates uploads, classifies native-text versus scanned content and
// derives the document fingerprint used as the session id.
package loader

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"

	"github.com/docsense/docsense/internal/textutil"
	"github.com/docsense/docsense/models"
)

// ValidationError is surfaced immediately to the caller; no session is
// created for an invalid upload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Document is the result of loading one upload.
type Document struct {
	ID          string
	Filename    string
	FileType    string
	ByteSize    int64
	PageCount   int
	IsScanned   bool
	HasNative   bool
	Pages       []models.PageContent
	RawText     string // normalized native text, empty on scanned-only input
	ScannedOnly bool   // true when the text source must come from OCR
	// Images holds the encoded image per page number for pages that need
	// OCR. PDFs are not rasterized, so only image uploads populate this.
	Images map[int][]byte
}

// PageImage returns the encoded image for a page, nil when none exists.
func (d *Document) PageImage(n int) []byte { return d.Images[n] }

// Config bounds what the loader accepts. All knobs are externally supplied.
type Config struct {
	MaxFileSizeMB int
	MaxPages      int
	Extensions    []string
}

// Loader validates and loads uploads.
type Loader struct {
	maxBytes int64
	maxPages int
	exts     map[string]struct{}
}

// DefaultExtensions mirrors the upload formats the service accepts.
var DefaultExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".tif", ".txt", ".html"}

// New builds a loader from config, applying defaults for zero values.
func New(cfg Config) *Loader {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 25
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &Loader{
		maxBytes: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		maxPages: cfg.MaxPages,
		exts:     exts,
	}
}

// Fingerprint derives the document id: a sha1 over the filename, the byte
// length and the first 256 bytes of content, truncated to 12 hex chars.
// This is a cheap upload fingerprint, not a content hash: two large files
// sharing a 256-byte header and length collide, which is accepted so that
// re-uploading the identical file lands on the same session.
func Fingerprint(filename string, content []byte) string {
	head := content
	if len(head) > 256 {
		head = head[:256]
	}
	h := sha1.New()
	fmt.Fprintf(h, "%s:%d:", filename, len(content))
	h.Write(head)
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Validate checks the upload before any processing. It returns a
// *ValidationError with a human-readable reason on rejection.
func (l *Loader) Validate(content []byte, filename string) error {
	if len(content) == 0 {
		return &ValidationError{Reason: "empty upload"}
	}
	ext := extension(filename)
	if _, ok := l.exts[ext]; !ok {
		return &ValidationError{Reason: fmt.Sprintf("unsupported file format %q", ext)}
	}
	if int64(len(content)) > l.maxBytes {
		return &ValidationError{Reason: fmt.Sprintf(
			"file size %.1fMB exceeds maximum %dMB",
			float64(len(content))/1024/1024, l.maxBytes/1024/1024)}
	}
	if ext == ".pdf" {
		r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
		if err != nil {
			return &ValidationError{Reason: fmt.Sprintf("corrupt or invalid PDF: %v", err)}
		}
		if n := r.NumPage(); n > l.maxPages {
			return &ValidationError{Reason: fmt.Sprintf("page count %d exceeds maximum %d", n, l.maxPages)}
		}
	}
	return nil
}

// Load validates the upload and extracts its pages. For scanned input the
// pages are present but empty; the caller is expected to fill them through
// the OCR collaborator. A native-path document with no extractable text
// fails here.
func (l *Loader) Load(content []byte, filename string) (*Document, error) {
	if err := l.Validate(content, filename); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:       Fingerprint(filename, content),
		Filename: filename,
		FileType: extension(filename),
		ByteSize: int64(len(content)),
	}

	switch doc.FileType {
	case ".pdf":
		if err := l.loadPDF(content, doc); err != nil {
			return nil, err
		}
	case ".txt":
		l.loadPlain(string(content), doc)
	case ".html":
		if err := l.loadHTML(content, doc); err != nil {
			return nil, err
		}
	default: // image formats are a single page awaiting OCR
		doc.IsScanned = true
		doc.ScannedOnly = true
		doc.Pages = []models.PageContent{{PageNumber: 1, IsScanned: true}}
		doc.PageCount = 1
		doc.Images = map[int][]byte{1: content}
	}

	if !doc.ScannedOnly && doc.RawText == "" {
		return nil, &ValidationError{Reason: "no machine-readable text found in document"}
	}
	return doc, nil
}

// scannedPageThreshold: a PDF page yielding fewer extractable characters
// than this is treated as scanned.
const scannedPageThreshold = 100

func (l *Loader) loadPDF(content []byte, doc *Document) error {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("corrupt or invalid PDF: %v", err)}
	}

	pageCount := r.NumPage()
	scanned := 0
	var parts []string

	for i := 1; i <= pageCount; i++ {
		page := r.Page(i)
		var text string
		if !page.V.IsNull() {
			// Extraction errors on one page degrade that page to scanned
			// rather than failing the document.
			if t, err := page.GetPlainText(nil); err == nil {
				text = textutil.Normalize(t)
			}
		}
		isScanned := len(text) < scannedPageThreshold
		if isScanned {
			scanned++
		} else {
			doc.HasNative = true
		}
		doc.Pages = append(doc.Pages, models.PageContent{
			PageNumber: i,
			Text:       text,
			IsScanned:  isScanned,
		})
		if text != "" {
			parts = append(parts, text)
		}
	}

	doc.PageCount = pageCount
	doc.IsScanned = scanned > pageCount/2
	doc.ScannedOnly = doc.IsScanned && !doc.HasNative
	doc.RawText = strings.Join(parts, "\n\n")
	return nil
}

func (l *Loader) loadPlain(text string, doc *Document) {
	text = textutil.Normalize(text)
	doc.Pages = []models.PageContent{{PageNumber: 1, Text: text}}
	doc.PageCount = 1
	doc.HasNative = text != ""
	doc.RawText = text
}

func (l *Loader) loadHTML(content []byte, doc *Document) error {
	base, _ := url.Parse("https://upload.local/" + doc.Filename)
	article, err := readability.FromReader(bytes.NewReader(content), base)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("unreadable HTML document: %v", err)}
	}
	l.loadPlain(article.TextContent, doc)
	return nil
}

// ApplyOCR fills the scanned pages of doc with collaborator-produced text
// and recomputes the concatenated raw text.
func ApplyOCR(doc *Document, pageTexts map[int]string) {
	var parts []string
	for i := range doc.Pages {
		p := &doc.Pages[i]
		if t, ok := pageTexts[p.PageNumber]; ok && p.Text == "" {
			p.Text = textutil.Normalize(t)
		}
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	doc.RawText = strings.Join(parts, "\n\n")
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
