package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docsense/docsense/internal/docstore"
	"github.com/docsense/docsense/internal/loader"
	"github.com/docsense/docsense/internal/pipeline"
	"github.com/docsense/docsense/internal/summarizer"
	"github.com/docsense/docsense/models"
)

const sampleText = "Invoice Number INV-2024-001 issued by Acme Widgets Inc. " +
	"The total amount payable is $1,800.00 due on 2024-02-19. " +
	"Please contact billing@acme.example for questions."

func newHandler(t *testing.T) (*DocumentsHandler, *docstore.Store) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	store := docstore.New(docstore.Options{Capacity: 5, TTL: time.Hour, Logger: quiet})
	p := pipeline.New(pipeline.Config{}, pipeline.Deps{
		Store:      store,
		Loader:     loader.New(loader.Config{MaxFileSizeMB: 25, MaxPages: 50}),
		Summarizer: summarizer.New(summarizer.Config{}, nil, quiet),
		Logger:     quiet,
	})
	return &DocumentsHandler{Pipeline: p, Store: store, Logger: quiet}, store
}

// ingestAndRun processes a text document synchronously so handler tests can
// exercise completed sessions without polling.
func ingestAndRun(t *testing.T, h *DocumentsHandler, filename, text string) string {
	t.Helper()
	id, err := h.Pipeline.Ingest([]byte(text), filename)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	h.Pipeline.Run(context.Background(), id, []byte(text), filename)
	return id
}

func newContext(t *testing.T, method, target string, body io.Reader, contentType string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadAccepted(t *testing.T) {
	h, store := newHandler(t)
	body, ctype := multipartUpload(t, "invoice.txt", []byte(sampleText))
	ctx, rec := newContext(t, http.MethodPost, "/api/documents", body, ctype)

	if err := h.upload(ctx); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DocumentID == "" || resp.Status != models.StatusPending {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// Background processing reaches a terminal state.
	deadline := time.After(5 * time.Second)
	for {
		sess, ok := store.Get(resp.DocumentID)
		if ok && sess.Status.Terminal() {
			if sess.Status != models.StatusCompleted {
				t.Fatalf("processing failed: %s", sess.ErrorMessage)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("processing did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	h, _ := newHandler(t)
	ctx, _ := newContext(t, http.MethodPost, "/api/documents", strings.NewReader("{}"), echo.MIMEApplicationJSON)

	err := h.upload(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestUploadRejectsBadExtension(t *testing.T) {
	h, _ := newHandler(t)
	body, ctype := multipartUpload(t, "script.exe", []byte("binary"))
	ctx, _ := newContext(t, http.MethodPost, "/api/documents", body, ctype)

	err := h.upload(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestGetDocumentView(t *testing.T) {
	h, _ := newHandler(t)
	id := ingestAndRun(t, h, "invoice.txt", sampleText)

	ctx, rec := newContext(t, http.MethodGet, "/api/documents/"+id, nil, "")
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)

	if err := h.get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	var view map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "status", "entities", "summary", "progress", "suggested_questions"} {
		if _, ok := view[key]; !ok {
			t.Fatalf("view missing %q: %s", key, rec.Body.String())
		}
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	h, _ := newHandler(t)
	ctx, _ := newContext(t, http.MethodGet, "/api/documents/missing", nil, "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing")

	err := h.get(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestQAEndpoint(t *testing.T) {
	h, _ := newHandler(t)
	id := ingestAndRun(t, h, "invoice.txt", sampleText)

	body := strings.NewReader(`{"question": "What is the total amount payable?"}`)
	ctx, rec := newContext(t, http.MethodPost, "/api/documents/"+id+"/qa", body, echo.MIMEApplicationJSON)
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)

	if err := h.qa(ctx); err != nil {
		t.Fatalf("qa: %v", err)
	}
	var ans models.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &ans); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(ans.Answer, "$1,800.00") {
		t.Fatalf("expected grounded answer, got %q", ans.Answer)
	}
}

func TestQARejectsPendingDocument(t *testing.T) {
	h, _ := newHandler(t)
	id, err := h.Pipeline.Ingest([]byte(sampleText), "invoice.txt")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	body := strings.NewReader(`{"question": "anything"}`)
	ctx, _ := newContext(t, http.MethodPost, "/api/documents/"+id+"/qa", body, echo.MIMEApplicationJSON)
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)

	err = h.qa(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestEntitiesFilter(t *testing.T) {
	h, _ := newHandler(t)
	id := ingestAndRun(t, h, "invoice.txt", sampleText)

	ctx, rec := newContext(t, http.MethodGet, "/api/documents/"+id+"/entities?type=amount", nil, "")
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)

	if err := h.entities(ctx); err != nil {
		t.Fatalf("entities: %v", err)
	}
	var list []models.Entity
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) == 0 || list[0].Category != models.CategoryAmount {
		t.Fatalf("unexpected filtered entities: %+v", list)
	}

	ctx, _ = newContext(t, http.MethodGet, "/api/documents/"+id+"/entities?type=bogus", nil, "")
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)
	err := h.entities(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %v", err)
	}
}

func TestSearchEndpoint(t *testing.T) {
	h, _ := newHandler(t)
	id := ingestAndRun(t, h, "invoice.txt", sampleText)

	ctx, rec := newContext(t, http.MethodGet, "/api/documents/"+id+"/search?q=total+amount", nil, "")
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)

	if err := h.search(ctx); err != nil {
		t.Fatalf("search: %v", err)
	}
	var hits []models.SearchHit
	if err := json.Unmarshal(rec.Body.Bytes(), &hits); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
}

func TestDeleteDocument(t *testing.T) {
	h, store := newHandler(t)
	id := ingestAndRun(t, h, "invoice.txt", sampleText)

	ctx, rec := newContext(t, http.MethodDelete, "/api/documents/"+id, nil, "")
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)

	if err := h.delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if store.Exists(id) {
		t.Fatal("document should be gone")
	}

	ctx, _ = newContext(t, http.MethodDelete, "/api/documents/"+id, nil, "")
	ctx.SetParamNames("id")
	ctx.SetParamValues(id)
	err := h.delete(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %v", err)
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, _ := newHandler(t)
	ingestAndRun(t, h, "invoice.txt", sampleText)

	ctx, rec := newContext(t, http.MethodGet, "/api/stats", nil, "")
	if err := h.stats(ctx); err != nil {
		t.Fatalf("stats: %v", err)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DocumentCount != 1 || resp.Capacity != 5 {
		t.Fatalf("unexpected stats: %+v", resp)
	}
}
