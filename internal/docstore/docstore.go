// Package docstore is the in-memory session store for uploaded documents.
// Sessions live only for the duration of a bounded, expiring session: the
// store enforces a capacity cap with least-recently-used eviction and an
// idle TTL, and nothing is ever written to disk.
package docstore

import (
	"container/list"
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsense/docsense/models"
)

// Session is the in-memory record of one uploaded document's processing
// state and derived artifacts. It is owned exclusively by the Store; callers
// receive copies scoped to one call and must not cache them.
type Session struct {
	ID           string               `json:"id"`
	Filename     string               `json:"filename"`
	ByteSize     int64                `json:"byte_size"`
	FileType     string               `json:"file_type"`
	PageCount    int                  `json:"page_count"`
	IsScanned    bool                 `json:"is_scanned"`
	Status       models.Status        `json:"status"`
	RawText      string               `json:"-"`
	Pages        []models.PageContent `json:"pages,omitempty"`
	Chunks       []models.TextChunk   `json:"chunks,omitempty"`
	Entities     models.Entities      `json:"entities"`
	Summary      *models.Summary      `json:"summary,omitempty"`
	Conversation []models.QAMessage   `json:"conversation,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	LastAccessed time.Time            `json:"last_accessed"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// Stats summarizes store occupancy.
type Stats struct {
	Count       int           `json:"count"`
	Capacity    int           `json:"capacity"`
	TTL         time.Duration `json:"ttl"`
	DocumentIDs []string      `json:"document_ids"`
}

type entry struct {
	sess     *Session
	progress *models.Progress
	elem     *list.Element // element value is the session id
}

// Store is the concurrent session store. A single mutex serializes all
// lookups and mutations; critical sections are plain map and list work, so
// coarse locking is the accepted trade-off at this scale. Construct it
// explicitly and inject it; there is no package-level instance.
type Store struct {
	mu       sync.Mutex
	items    map[string]*entry
	order    *list.List // front = least recently used, back = most recent
	capacity int
	ttl      time.Duration

	sweepEvery time.Duration
	stopSweep  context.CancelFunc
	sweepDone  chan struct{}

	logger   *log.Logger
	now      func() time.Time
	onRemove func(id string)
}

// Options configures a Store. Zero SweepInterval disables the background
// sweeper (CleanupExpired can still be called directly).
type Options struct {
	Capacity      int
	TTL           time.Duration
	SweepInterval time.Duration
	Logger        *log.Logger
	// OnRemove is invoked (under the store lock, so it must not call back
	// into the store) each time a session leaves the store for any reason:
	// eviction, expiry or explicit delete.
	OnRemove func(id string)
}

// New builds an empty store. Capacity must be at least 1.
func New(opts Options) *Store {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return &Store{
		items:      make(map[string]*entry),
		order:      list.New(),
		capacity:   opts.Capacity,
		ttl:        opts.TTL,
		sweepEvery: opts.SweepInterval,
		logger:     logger,
		now:        time.Now,
		onRemove:   opts.OnRemove,
	}
}

// NewSession carries the fields known at upload time.
type NewSession struct {
	ID        string // optional; generated when empty
	Filename  string
	ByteSize  int64
	FileType  string
	PageCount int
	IsScanned bool
}

// Create inserts a pending session and returns its id, evicting the least
// recently used session first when the store is at capacity. Creating an id
// that already exists resets that session to pending (reprocessing) instead
// of inserting a duplicate.
func (s *Store) Create(n NewSession) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := n.ID
	if id == "" {
		id = uuid.NewString()[:12]
	}

	if e, ok := s.items[id]; ok {
		s.resetLocked(e, n)
		s.touchLocked(e)
		return id
	}

	s.evictLocked()

	now := s.now()
	e := &entry{
		sess: &Session{
			ID:           id,
			Filename:     n.Filename,
			ByteSize:     n.ByteSize,
			FileType:     n.FileType,
			PageCount:    n.PageCount,
			IsScanned:    n.IsScanned,
			Status:       models.StatusPending,
			CreatedAt:    now,
			LastAccessed: now,
		},
		progress: &models.Progress{
			DocID:       id,
			Status:      models.StatusPending,
			Percent:     0,
			CurrentStep: "initialized",
		},
	}
	e.elem = s.order.PushBack(id)
	s.items[id] = e
	s.logger.Printf("created document %s (%s)", id, n.Filename)
	return id
}

// resetLocked returns an existing session to pending and drops artifacts of
// the previous processing attempt. Conversation history survives a
// reprocess; the chunks it referenced are replaced wholesale.
func (s *Store) resetLocked(e *entry, n NewSession) {
	sess := e.sess
	sess.Filename = n.Filename
	sess.ByteSize = n.ByteSize
	sess.FileType = n.FileType
	sess.PageCount = n.PageCount
	sess.IsScanned = n.IsScanned
	sess.Status = models.StatusPending
	sess.RawText = ""
	sess.Pages = nil
	sess.Chunks = nil
	sess.Entities = models.Entities{}
	sess.Summary = nil
	sess.ErrorMessage = ""
	e.progress = &models.Progress{
		DocID:       sess.ID,
		Status:      models.StatusPending,
		Percent:     0,
		CurrentStep: "initialized",
	}
}

// Get returns a copy of the session and touches its recency.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return Session{}, false
	}
	s.touchLocked(e)
	return copySession(e.sess), true
}

// Snapshot returns the session together with its progress under a single
// lock acquisition, so the pair is mutually consistent.
func (s *Store) Snapshot(id string) (Session, models.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return Session{}, models.Progress{}, false
	}
	s.touchLocked(e)
	return copySession(e.sess), *e.progress, true
}

// Exists reports presence without touching recency.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok
}

// Delete removes the session. In-flight pipeline stages for the id will
// observe their next write returning false and abandon the document.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return false
	}
	s.removeLocked(id, e)
	s.logger.Printf("deleted document %s", id)
	return true
}

// ListIDs returns all ids, least recently used first.
func (s *Store) ListIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}

// GetStats reports occupancy and limits.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(string))
	}
	return Stats{
		Count:       len(s.items),
		Capacity:    s.capacity,
		TTL:         s.ttl,
		DocumentIDs: ids,
	}
}

// ClearAll drops every session and returns how many were removed. Each
// removal goes through the same path as eviction so OnRemove observers see
// them all.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	for id, e := range s.items {
		s.removeLocked(id, e)
	}
	return n
}

// mutate runs fn on the session if present, touching recency. Every
// targeted mutator goes through here so the "absent id is a no-op returning
// false" contract holds uniformly.
func (s *Store) mutate(id string, fn func(*entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return false
	}
	fn(e)
	s.touchLocked(e)
	return true
}

// UpdateRawText stores the concatenated normalized text.
func (s *Store) UpdateRawText(id, text string) bool {
	return s.mutate(id, func(e *entry) { e.sess.RawText = text })
}

// UpdatePages replaces the page list and keeps the page count in step.
func (s *Store) UpdatePages(id string, pages []models.PageContent) bool {
	return s.mutate(id, func(e *entry) {
		e.sess.Pages = pages
		e.sess.PageCount = len(pages)
	})
}

// UpdateChunks replaces the chunk list wholesale.
func (s *Store) UpdateChunks(id string, chunks []models.TextChunk) bool {
	return s.mutate(id, func(e *entry) { e.sess.Chunks = chunks })
}

// UpdateEntities replaces extraction output.
func (s *Store) UpdateEntities(id string, ents models.Entities) bool {
	return s.mutate(id, func(e *entry) { e.sess.Entities = ents })
}

// UpdateSummary stores summarization output.
func (s *Store) UpdateSummary(id string, sum models.Summary) bool {
	return s.mutate(id, func(e *entry) { e.sess.Summary = &sum })
}

// SetStatus advances the lifecycle state. Backward transitions are refused;
// use Create with the same id to reset a session for reprocessing.
func (s *Store) SetStatus(id string, status models.Status) bool {
	ok := false
	present := s.mutate(id, func(e *entry) {
		if !validTransition(e.sess.Status, status) {
			return
		}
		e.sess.Status = status
		e.progress.Status = status
		ok = true
	})
	return present && ok
}

// SetError marks the session failed with a message.
func (s *Store) SetError(id, msg string) bool {
	return s.mutate(id, func(e *entry) {
		e.sess.Status = models.StatusFailed
		e.sess.ErrorMessage = msg
		e.progress.Status = models.StatusFailed
		e.progress.Message = msg
	})
}

func validTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	switch from {
	case models.StatusPending:
		return to == models.StatusProcessing
	case models.StatusProcessing:
		return to.Terminal()
	default: // terminal states only repeat, never move
		return false
	}
}

// SetProgress overwrites the progress snapshot and mirrors the status onto
// the session.
func (s *Store) SetProgress(id string, status models.Status, percent int, step, message string) bool {
	return s.mutate(id, func(e *entry) {
		e.progress = &models.Progress{
			DocID:       id,
			Status:      status,
			Percent:     percent,
			CurrentStep: step,
			Message:     message,
		}
		if validTransition(e.sess.Status, status) {
			e.sess.Status = status
		}
	})
}

// GetProgress returns the latest progress snapshot, which may never have
// been written for a freshly created id.
func (s *Store) GetProgress(id string) (models.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return models.Progress{}, false
	}
	return *e.progress, true
}

// AppendMessage adds one conversation turn. Append order is preserved; no
// deduplication is applied.
func (s *Store) AppendMessage(id, role, content string) bool {
	return s.mutate(id, func(e *entry) {
		e.sess.Conversation = append(e.sess.Conversation, models.QAMessage{
			Role:    role,
			Content: content,
			At:      s.now(),
		})
	})
}

// Conversation returns a copy of the message history.
func (s *Store) Conversation(id string) ([]models.QAMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	s.touchLocked(e)
	return append([]models.QAMessage(nil), e.sess.Conversation...), true
}

// ClearConversation drops the message history.
func (s *Store) ClearConversation(id string) bool {
	return s.mutate(id, func(e *entry) { e.sess.Conversation = nil })
}

// touchLocked bumps last_accessed and moves the session to the
// most-recently-used position. Callers hold the lock.
func (s *Store) touchLocked(e *entry) {
	e.sess.LastAccessed = s.now()
	s.order.MoveToBack(e.elem)
}

// evictLocked removes least-recently-used sessions until there is room for
// one insert.
func (s *Store) evictLocked() {
	for len(s.items) >= s.capacity {
		front := s.order.Front()
		if front == nil {
			return
		}
		id := front.Value.(string)
		s.removeLocked(id, s.items[id])
		s.logger.Printf("evicted document %s (capacity)", id)
	}
}

func (s *Store) removeLocked(id string, e *entry) {
	s.order.Remove(e.elem)
	delete(s.items, id)
	if s.onRemove != nil {
		s.onRemove(id)
	}
}

func (s *Store) expiredLocked(e *entry) bool {
	if s.ttl <= 0 {
		// A non-positive TTL expires sessions immediately after creation.
		return s.now().After(e.sess.CreatedAt)
	}
	return s.now().After(e.sess.LastAccessed.Add(s.ttl))
}

// CleanupExpired removes every TTL-expired session and returns the count.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, e := range s.items {
		if s.expiredLocked(e) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		s.removeLocked(id, s.items[id])
		s.logger.Printf("expired document %s (ttl)", id)
	}
	return len(expired)
}

// StartSweeper launches the background expiry sweep. The sweeper is an
// owned resource of the store: stop it with StopSweeper or by cancelling
// ctx. Starting twice is a no-op.
func (s *Store) StartSweeper(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopSweep != nil || s.sweepEvery <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.stopSweep = cancel
	done := make(chan struct{})
	s.sweepDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.CleanupExpired(); n > 0 {
					s.logger.Printf("sweep removed %d expired documents", n)
				}
			}
		}
	}()
}

// StopSweeper stops the background sweep and waits for it to exit.
func (s *Store) StopSweeper() {
	s.mu.Lock()
	cancel := s.stopSweep
	done := s.sweepDone
	s.stopSweep = nil
	s.sweepDone = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func copySession(in *Session) Session {
	out := *in
	out.Pages = append([]models.PageContent(nil), in.Pages...)
	out.Chunks = append([]models.TextChunk(nil), in.Chunks...)
	out.Conversation = append([]models.QAMessage(nil), in.Conversation...)
	if in.Summary != nil {
		sum := *in.Summary
		out.Summary = &sum
	}
	return out
}
