package handlers

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/coachkb/internal/api"
	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/cloo-solutions/coachkb/internal/extract"
	"github.com/cloo-solutions/coachkb/internal/pagination"
	"github.com/cloo-solutions/coachkb/internal/service"
	"github.com/go-chi/chi/v5"
)

// MaxUploadMemory is the part of a multipart upload held in memory.
const MaxUploadMemory = 32 << 20

type DocumentStore interface {
	Get(ctx context.Context, id int64) (*domain.Chunk, error)
	List(ctx context.Context, input service.ListInput) (pagination.PageResult[*domain.Chunk], error)
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*domain.Stats, error)
	Sources(ctx context.Context) ([]string, error)
	Sample(ctx context.Context, category string, n int) ([]*domain.Chunk, error)
}

type SourceIngestor interface {
	IngestSources(ctx context.Context, sources []extract.Source) (*service.IngestReport, error)
}

type DocumentHandler struct {
	store    DocumentStore
	ingestor SourceIngestor
}

func NewDocumentHandler(store DocumentStore, ingestor SourceIngestor) *DocumentHandler {
	return &DocumentHandler{store: store, ingestor: ingestor}
}

// ChunkResponse carries metadata in its ordered typed form:
// [{"key":"section","type":"int","value":1}].
type ChunkResponse struct {
	ID        int64           `json:"id"`
	Content   string          `json:"content"`
	Source    string          `json:"source"`
	ChunkType string          `json:"chunk_type"`
	Metadata  domain.Metadata `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

type ListDocumentsResponse struct {
	Items   []*ChunkResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

type StatsResponse struct {
	Total       int64            `json:"total"`
	ByChunkType map[string]int64 `json:"by_chunk_type"`
	BySource    map[string]int64 `json:"by_source"`
	ByCategory  map[string]int64 `json:"by_category"`
}

type SampleResponse struct {
	Category string           `json:"category"`
	Items    []*ChunkResponse `json:"items"`
}

type ClearResponse struct {
	Deleted int64 `json:"deleted"`
}

func chunkToResponse(c *domain.Chunk) *ChunkResponse {
	meta := c.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	return &ChunkResponse{
		ID:        c.ID,
		Content:   c.Content,
		Source:    c.Source,
		ChunkType: string(c.ChunkType),
		Metadata:  meta,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Ingest extracts and stores every multipart "file" part. An optional
// "category" field tags every chunk. Per-file failures are reported in the
// body; only a request without files is rejected.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		api.Error(w, http.StatusBadRequest, "at least one file part is required")
		return
	}

	category := strings.TrimSpace(r.FormValue("category"))

	sources := make([]extract.Source, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			api.Error(w, http.StatusBadRequest, "cannot open upload "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			api.Error(w, http.StatusBadRequest, "cannot read upload "+fh.Filename)
			return
		}
		sources = append(sources, extract.Source{Name: filepath.Base(fh.Filename), Data: data, Category: category})
	}

	report, err := h.ingestor.IngestSources(r.Context(), sources)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, report)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	page, err := h.store.List(r.Context(), service.ListInput{
		Source:   q.Get("source"),
		Category: q.Get("category"),
		Cursor:   q.Get("cursor"),
		Limit:    limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ChunkResponse, len(page.Items))
	for i, c := range page.Items {
		items[i] = chunkToResponse(c)
	}

	api.Success(w, http.StatusOK, ListDocumentsResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.Error(w, http.StatusBadRequest, "invalid id")
		return
	}

	chunk, err := h.store.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, chunkToResponse(chunk))
}

func (h *DocumentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Clear(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ClearResponse{Deleted: n})
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := StatsResponse{
		Total:       stats.Total,
		ByChunkType: make(map[string]int64, len(stats.ByChunkType)),
		BySource:    stats.BySource,
	}
	for t, n := range stats.ByChunkType {
		resp.ByChunkType[string(t)] = n
	}
	if resp.BySource == nil {
		resp.BySource = map[string]int64{}
	}
	resp.ByCategory = stats.ByCategory
	if resp.ByCategory == nil {
		resp.ByCategory = map[string]int64{}
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Sources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.Sources(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if sources == nil {
		sources = []string{}
	}
	sort.Strings(sources)

	api.Success(w, http.StatusOK, sources)
}

// Sample returns the first n chunks of a category, n from the query (default 3).
func (h *DocumentHandler) Sample(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			api.Error(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = v
	}

	chunks, err := h.store.Sample(r.Context(), category, n)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ChunkResponse, len(chunks))
	for i, c := range chunks {
		items[i] = chunkToResponse(c)
	}
	api.Success(w, http.StatusOK, SampleResponse{Category: category, Items: items})
}
