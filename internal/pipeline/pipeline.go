// Package pipeline orchestrates document ingestion end to end: validate,
// load, OCR, chunk, extract entities, index, summarize. Stages write their
// results into the session store as they finish, so progress polling sees a
// live view.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/docsense/docsense/internal/chunker"
	"github.com/docsense/docsense/internal/docstore"
	"github.com/docsense/docsense/internal/entity"
	"github.com/docsense/docsense/internal/loader"
	"github.com/docsense/docsense/internal/qa"
	"github.com/docsense/docsense/internal/retriever"
	"github.com/docsense/docsense/internal/summarizer"
	"github.com/docsense/docsense/internal/telemetry"
	"github.com/docsense/docsense/models"
	"github.com/docsense/docsense/ocr"
)

// ErrNotReady is returned when a question is asked before the document
// reaches the completed state.
var ErrNotReady = errors.New("document is not ready")

// Config carries the processing knobs.
type Config struct {
	ChunkMaxChars int
	ChunkOverlap  int
	TopK          int
	// UseIndex enables the BM25 side index per document; when false the
	// lexical scorer runs directly over the stored chunks.
	UseIndex bool
	// OCRLanguages are the trained-data hints passed to the OCR engine.
	OCRLanguages []string
}

func (c Config) withDefaults() Config {
	if c.ChunkMaxChars <= 0 {
		c.ChunkMaxChars = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.TopK <= 0 {
		c.TopK = 3
	}
	return c
}

// Deps are the collaborators the pipeline drives. OCR, Metrics and Logger
// are optional.
type Deps struct {
	Store      *docstore.Store
	Loader     *loader.Loader
	Summarizer *summarizer.Summarizer
	OCR        ocr.Engine
	Metrics    *telemetry.Metrics
	Logger     *log.Logger
}

type Pipeline struct {
	store   *docstore.Store
	loader  *loader.Loader
	sum     *summarizer.Summarizer
	ocrEng  ocr.Engine
	metrics *telemetry.Metrics
	logger  *log.Logger
	cfg     Config

	mu      sync.Mutex
	indexes map[string]*retriever.Index
}

func New(cfg Config, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		store:   deps.Store,
		loader:  deps.Loader,
		sum:     deps.Summarizer,
		ocrEng:  deps.OCR,
		metrics: deps.Metrics,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		indexes: map[string]*retriever.Index{},
	}
}

// Ingest validates the upload and registers a pending session. The returned
// id is stable for identical filename and content, so re-uploading the same
// file reprocesses the existing session instead of creating a new one.
func (p *Pipeline) Ingest(content []byte, filename string) (string, error) {
	if err := p.loader.Validate(content, filename); err != nil {
		return "", err
	}
	id := loader.Fingerprint(filename, content)
	p.dropIndex(id) // stale index from a previous run of the same document
	p.store.Create(docstore.NewSession{
		ID:       id,
		Filename: filename,
		ByteSize: int64(len(content)),
	})
	p.refreshGauge()
	return id, nil
}

// Run processes the document through every stage and leaves the session in
// a terminal state. It is meant to run in a goroutine after Ingest; if the
// session vanishes mid-flight (deleted or evicted) the run is abandoned
// quietly.
func (p *Pipeline) Run(ctx context.Context, id string, content []byte, filename string) {
	start := time.Now()

	if !p.store.SetStatus(id, models.StatusProcessing) {
		p.logger.Printf("document %s gone before processing started", id)
		return
	}
	p.step(id, 5, "validating", "Upload accepted")

	doc, err := p.loader.Load(content, filename)
	if err != nil {
		p.fail(id, start, fmt.Errorf("loading document: %w", err))
		return
	}
	p.step(id, 15, "loading", fmt.Sprintf("Extracted %d pages", doc.PageCount))

	if doc.ScannedOnly || doc.IsScanned {
		if err := p.runOCR(ctx, doc); err != nil {
			p.fail(id, start, fmt.Errorf("ocr: %w", err))
			return
		}
		p.step(id, 30, "ocr", "Recovered text from scanned pages")
	}
	if strings.TrimSpace(doc.RawText) == "" {
		p.fail(id, start, errors.New("no readable text found after processing"))
		return
	}
	if !p.store.UpdateRawText(id, doc.RawText) || !p.store.UpdatePages(id, doc.Pages) {
		p.abandon(id)
		return
	}

	chunks := chunker.Chunks(doc.RawText, doc.Pages, chunker.Config{
		MaxChars: p.cfg.ChunkMaxChars,
		Overlap:  p.cfg.ChunkOverlap,
	})
	if !p.store.UpdateChunks(id, chunks) {
		p.abandon(id)
		return
	}
	p.step(id, 45, "chunking", fmt.Sprintf("Split text into %d chunks", len(chunks)))

	ents := entity.Extract(doc.RawText, doc.Pages)
	if !p.store.UpdateEntities(id, ents) {
		p.abandon(id)
		return
	}
	p.step(id, 60, "entities", fmt.Sprintf("Found %d entities", ents.Total()))

	if p.cfg.UseIndex && len(chunks) > 0 {
		if err := p.buildIndex(id, chunks); err != nil {
			p.fail(id, start, fmt.Errorf("indexing: %w", err))
			return
		}
		p.step(id, 75, "indexing", "Chunks indexed for retrieval")
	}

	sum := p.sum.Summarize(ctx, doc.RawText)
	if !p.store.UpdateSummary(id, sum) {
		p.abandon(id)
		return
	}
	p.step(id, 90, "summarizing", "Summary generated")

	if !p.store.SetStatus(id, models.StatusCompleted) {
		p.abandon(id)
		return
	}
	p.store.SetProgress(id, models.StatusCompleted, 100, "completed", "Processing completed")
	p.observe(models.StatusCompleted, start)
	p.logger.Printf("document %s processed in %s (%d pages, %d chunks)",
		id, time.Since(start).Round(time.Millisecond), doc.PageCount, len(chunks))
}

// Answer retrieves evidence for the question and composes a grounded
// answer. The exchange is appended to the session conversation.
func (p *Pipeline) Answer(ctx context.Context, id, question string) (models.Answer, error) {
	sess, ok := p.store.Get(id)
	if !ok {
		return models.Answer{}, models.ErrDocumentNotFound
	}
	if sess.Status != models.StatusCompleted {
		return models.Answer{}, fmt.Errorf("%w: status is %s", ErrNotReady, sess.Status)
	}

	hits, err := p.search(ctx, id, question, sess.Chunks)
	if err != nil {
		return models.Answer{}, err
	}
	ans := qa.Compose(question, hits)

	p.store.AppendMessage(id, "user", question)
	p.store.AppendMessage(id, "assistant", ans.Answer)
	if p.metrics != nil {
		p.metrics.QuestionsTotal.Inc()
	}
	return ans, nil
}

// Search exposes raw retrieval hits without touching the conversation.
func (p *Pipeline) Search(ctx context.Context, id, query string, topK int) ([]models.SearchHit, error) {
	sess, ok := p.store.Get(id)
	if !ok {
		return nil, models.ErrDocumentNotFound
	}
	if sess.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, sess.Status)
	}
	if topK <= 0 {
		topK = p.cfg.TopK
	}
	if idx := p.index(id); idx != nil {
		return idx.Search(query, sess.Chunks, topK)
	}
	return retriever.Retrieve(sess.Chunks, query, topK), nil
}

// SuggestedQuestions returns follow-up prompts for a completed session.
func (p *Pipeline) SuggestedQuestions(id string) ([]string, error) {
	sess, ok := p.store.Get(id)
	if !ok {
		return nil, models.ErrDocumentNotFound
	}
	return qa.SuggestedQuestions(sess.Filename, sess.Entities), nil
}

// Delete removes the session and any retrieval index built for it.
func (p *Pipeline) Delete(id string) bool {
	p.dropIndex(id)
	ok := p.store.Delete(id)
	p.refreshGauge()
	return ok
}

func (p *Pipeline) search(_ context.Context, id, query string, chunks []models.TextChunk) ([]models.SearchHit, error) {
	if idx := p.index(id); idx != nil {
		return idx.Search(query, chunks, p.cfg.TopK)
	}
	return retriever.Retrieve(chunks, query, p.cfg.TopK), nil
}

func (p *Pipeline) runOCR(ctx context.Context, doc *loader.Document) error {
	if p.ocrEng == nil {
		if doc.ScannedOnly {
			return errors.New("scanned document but no OCR engine configured")
		}
		// Mixed document with some native text: proceed with what we have.
		return nil
	}
	inputs := make([]ocr.Input, 0, len(doc.Pages))
	for _, page := range doc.Pages {
		if strings.TrimSpace(page.Text) != "" {
			continue
		}
		img := doc.PageImage(page.PageNumber)
		if img == nil {
			// Scanned PDF pages are not rasterized; nothing to hand the
			// engine.
			continue
		}
		inputs = append(inputs, ocr.Input{
			PageNumber: page.PageNumber,
			Image:      img,
			Languages:  p.cfg.OCRLanguages,
		})
	}
	if len(inputs) == 0 {
		return nil
	}
	texts, err := ocr.RecognizePages(ctx, p.ocrEng, inputs)
	if err != nil {
		return err
	}
	loader.ApplyOCR(doc, texts)
	return nil
}

func (p *Pipeline) buildIndex(id string, chunks []models.TextChunk) error {
	idx, err := retriever.NewIndex()
	if err != nil {
		return err
	}
	if err := idx.Add(chunks); err != nil {
		idx.Close()
		return err
	}
	p.mu.Lock()
	p.indexes[id] = idx
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) index(id string) *retriever.Index {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexes[id]
}

func (p *Pipeline) dropIndex(id string) {
	p.mu.Lock()
	idx := p.indexes[id]
	delete(p.indexes, id)
	p.mu.Unlock()
	if idx != nil {
		idx.Close()
	}
}

// PruneIndexes closes indexes whose sessions no longer exist. The store
// sweeper removes sessions on its own schedule, so this runs alongside it.
func (p *Pipeline) PruneIndexes() int {
	alive := map[string]struct{}{}
	for _, id := range p.store.ListIDs() {
		alive[id] = struct{}{}
	}
	p.mu.Lock()
	var stale []*retriever.Index
	for id, idx := range p.indexes {
		if _, ok := alive[id]; !ok {
			stale = append(stale, idx)
			delete(p.indexes, id)
		}
	}
	p.mu.Unlock()
	for _, idx := range stale {
		idx.Close()
	}
	return len(stale)
}

func (p *Pipeline) step(id string, percent int, step, message string) {
	p.store.SetProgress(id, models.StatusProcessing, percent, step, message)
}

func (p *Pipeline) fail(id string, start time.Time, err error) {
	p.logger.Printf("document %s failed: %v", id, err)
	p.store.SetError(id, err.Error())
	p.observe(models.StatusFailed, start)
}

func (p *Pipeline) abandon(id string) {
	p.logger.Printf("document %s vanished mid-processing, abandoning", id)
	p.dropIndex(id)
}

func (p *Pipeline) observe(status models.Status, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.DocumentsProcessed.WithLabelValues(string(status)).Inc()
	p.metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())
}

func (p *Pipeline) refreshGauge() {
	if p.metrics == nil {
		return
	}
	p.metrics.ActiveSessions.Set(float64(p.store.GetStats().Count))
}
