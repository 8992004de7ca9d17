package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/docsense/docsense/internal/docstore"
	"github.com/docsense/docsense/internal/pipeline"
	"github.com/docsense/docsense/models"
)

// DocumentsHandler exposes the document lifecycle endpoints.
type DocumentsHandler struct {
	Pipeline *pipeline.Pipeline
	Store    *docstore.Store
	Logger   *log.Logger
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	g.POST("", h.upload)
	g.GET("", h.list)
	g.DELETE("", h.clearAll)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.GET("/:id/progress", h.progress)
	g.GET("/:id/summary", h.summary)
	g.GET("/:id/entities", h.entities)
	g.GET("/:id/search", h.search)
	g.POST("/:id/qa", h.qa)
	g.GET("/:id/conversation", h.conversation)
}

type uploadResponse struct {
	DocumentID string        `json:"document_id"`
	Filename   string        `json:"filename"`
	Status     models.Status `json:"status"`
}

func (h *DocumentsHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := h.Pipeline.Ingest(content, fh.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// The request context dies when this handler returns; processing
	// outlives it.
	go h.Pipeline.Run(context.Background(), id, content, fh.Filename)

	return c.JSON(http.StatusAccepted, uploadResponse{
		DocumentID: id,
		Filename:   fh.Filename,
		Status:     models.StatusPending,
	})
}

type documentListItem struct {
	DocumentID string        `json:"document_id"`
	Filename   string        `json:"filename"`
	Status     models.Status `json:"status"`
	PageCount  int           `json:"page_count"`
	ByteSize   int64         `json:"byte_size"`
}

func (h *DocumentsHandler) list(c echo.Context) error {
	items := []documentListItem{}
	for _, id := range h.Store.ListIDs() {
		sess, ok := h.Store.Get(id)
		if !ok {
			continue
		}
		items = append(items, documentListItem{
			DocumentID: sess.ID,
			Filename:   sess.Filename,
			Status:     sess.Status,
			PageCount:  sess.PageCount,
			ByteSize:   sess.ByteSize,
		})
	}
	return c.JSON(http.StatusOK, items)
}

type documentView struct {
	docstore.Session
	Progress           models.Progress `json:"progress"`
	SuggestedQuestions []string        `json:"suggested_questions,omitempty"`
}

func (h *DocumentsHandler) get(c echo.Context) error {
	id := c.Param("id")
	sess, prog, ok := h.Store.Snapshot(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	view := documentView{Session: sess, Progress: prog}
	if sess.Status == models.StatusCompleted {
		if qs, err := h.Pipeline.SuggestedQuestions(id); err == nil {
			view.SuggestedQuestions = qs
		}
	}
	return c.JSON(http.StatusOK, view)
}

func (h *DocumentsHandler) delete(c echo.Context) error {
	if !h.Pipeline.Delete(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *DocumentsHandler) clearAll(c echo.Context) error {
	n := h.Store.ClearAll()
	h.Pipeline.PruneIndexes()
	return c.JSON(http.StatusOK, map[string]int{"cleared": n})
}

func (h *DocumentsHandler) progress(c echo.Context) error {
	prog, ok := h.Store.GetProgress(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, prog)
}

func (h *DocumentsHandler) summary(c echo.Context) error {
	sess, err := h.completedSession(c)
	if err != nil {
		return err
	}
	if sess.Summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "summary not available")
	}
	return c.JSON(http.StatusOK, sess.Summary)
}

func (h *DocumentsHandler) entities(c echo.Context) error {
	sess, err := h.completedSession(c)
	if err != nil {
		return err
	}
	if t := c.QueryParam("type"); t != "" {
		cat := models.Category(t)
		if !validCategory(cat) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown entity type: "+t)
		}
		list := sess.Entities.ByCategory(cat)
		if list == nil {
			list = []models.Entity{}
		}
		return c.JSON(http.StatusOK, list)
	}
	return c.JSON(http.StatusOK, sess.Entities)
}

func (h *DocumentsHandler) search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q' is required")
	}
	topK := 0
	if raw := c.QueryParam("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be a positive integer")
		}
		topK = n
	}
	hits, err := h.Pipeline.Search(c.Request().Context(), c.Param("id"), query, topK)
	if err != nil {
		return mapPipelineError(err)
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	return c.JSON(http.StatusOK, hits)
}

type qaRequest struct {
	Question string `json:"question"`
}

func (h *DocumentsHandler) qa(c echo.Context) error {
	var req qaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	ans, err := h.Pipeline.Answer(c.Request().Context(), c.Param("id"), req.Question)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, ans)
}

func (h *DocumentsHandler) conversation(c echo.Context) error {
	conv, ok := h.Store.Conversation(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if conv == nil {
		conv = []models.QAMessage{}
	}
	return c.JSON(http.StatusOK, conv)
}

type statsResponse struct {
	DocumentCount int      `json:"document_count"`
	Capacity      int      `json:"capacity"`
	TTLSeconds    float64  `json:"ttl_seconds"`
	DocumentIDs   []string `json:"document_ids"`
}

func (h *DocumentsHandler) stats(c echo.Context) error {
	st := h.Store.GetStats()
	return c.JSON(http.StatusOK, statsResponse{
		DocumentCount: st.Count,
		Capacity:      st.Capacity,
		TTLSeconds:    st.TTL.Seconds(),
		DocumentIDs:   st.DocumentIDs,
	})
}

func (h *DocumentsHandler) completedSession(c echo.Context) (docstore.Session, error) {
	sess, ok := h.Store.Get(c.Param("id"))
	if !ok {
		return docstore.Session{}, echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if sess.Status != models.StatusCompleted {
		return docstore.Session{}, echo.NewHTTPError(http.StatusConflict, "document not ready: status is "+string(sess.Status))
	}
	return sess, nil
}

func mapPipelineError(err error) error {
	switch {
	case errors.Is(err, models.ErrDocumentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, pipeline.ErrNotReady):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func validCategory(c models.Category) bool {
	for _, known := range models.Categories() {
		if c == known {
			return true
		}
	}
	return false
}
