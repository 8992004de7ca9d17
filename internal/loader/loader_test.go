package loader

import (
	"errors"
	"strings"
	"testing"

	"github.com/docsense/docsense/models"
)

func TestFingerprintStable(t *testing.T) {
	t.Parallel()
	content := []byte("Invoice Number INV-2024-001")
	a := Fingerprint("invoice.txt", content)
	b := Fingerprint("invoice.txt", content)
	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("fingerprint length = %d, want 12", len(a))
	}
	if c := Fingerprint("other.txt", content); c == a {
		t.Fatal("filename not part of the fingerprint")
	}
}

func TestFingerprintHeaderOnly(t *testing.T) {
	t.Parallel()
	// Only the first 256 bytes participate: same header and length collide.
	head := strings.Repeat("h", 256)
	a := Fingerprint("big.pdf", []byte(head+strings.Repeat("a", 100)))
	b := Fingerprint("big.pdf", []byte(head+strings.Repeat("b", 100)))
	if a != b {
		t.Fatal("expected header-only fingerprint to collide on identical headers")
	}
}

func TestValidateRejectsEmptyUpload(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	err := l.Validate(nil, "a.pdf")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if !strings.Contains(verr.Reason, "empty") {
		t.Fatalf("reason = %q", verr.Reason)
	}
}

func TestValidateRejectsUnsupportedExtension(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	err := l.Validate([]byte("data"), "malware.exe")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if !strings.Contains(verr.Reason, ".exe") {
		t.Fatalf("reason should name the extension: %q", verr.Reason)
	}
}

func TestValidateRejectsOversizedUpload(t *testing.T) {
	t.Parallel()
	l := New(Config{MaxFileSizeMB: 1})
	big := make([]byte, 2*1024*1024)
	err := l.Validate(big, "big.txt")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestValidateRejectsCorruptPDF(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	err := l.Validate([]byte("this is not a pdf at all"), "broken.pdf")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestLoadPlainText(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	doc, err := l.Load([]byte("Hello   world.\n\n\n\nMore text."), "note.txt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.PageCount != 1 || len(doc.Pages) != 1 {
		t.Fatalf("pages = %d", doc.PageCount)
	}
	if doc.IsScanned || doc.ScannedOnly {
		t.Fatal("plain text misclassified as scanned")
	}
	if doc.RawText != "Hello world.\n\nMore text." {
		t.Fatalf("raw text not normalized: %q", doc.RawText)
	}
	if doc.ID == "" {
		t.Fatal("missing fingerprint id")
	}
}

func TestLoadEmptyTextFails(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	_, err := l.Load([]byte("   \n\n  "), "blank.txt")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if !strings.Contains(verr.Reason, "no machine-readable text") {
		t.Fatalf("reason = %q", verr.Reason)
	}
}

func TestLoadImageIsScannedPlaceholder(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	doc, err := l.Load([]byte{0x89, 0x50, 0x4e, 0x47, 0x01, 0x02}, "scan.png")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !doc.IsScanned || !doc.ScannedOnly {
		t.Fatal("image upload must be scanned-only")
	}
	if len(doc.Pages) != 1 || doc.Pages[0].Text != "" {
		t.Fatalf("pages = %+v", doc.Pages)
	}
}

func TestApplyOCRFillsPagesAndRawText(t *testing.T) {
	t.Parallel()
	doc := &Document{
		ScannedOnly: true,
		IsScanned:   true,
		Pages: []models.PageContent{
			{PageNumber: 1, IsScanned: true},
			{PageNumber: 2, IsScanned: true},
		},
	}
	ApplyOCR(doc, map[int]string{
		1: "Recognized  page one.",
		2: "Recognized page two.",
	})
	if doc.Pages[0].Text != "Recognized page one." {
		t.Fatalf("page 1 = %q", doc.Pages[0].Text)
	}
	if doc.RawText != "Recognized page one.\n\nRecognized page two." {
		t.Fatalf("raw text = %q", doc.RawText)
	}
}
