package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/api"
	"github.com/cloo-solutions/coachkb/internal/domain"
)

// MaxSearchLimit caps the number of matches one request may ask for.
const MaxSearchLimit = 100

type TextSearcher interface {
	SearchText(ctx context.Context, text string, k int) ([]domain.Match, error)
}

type SearchHandler struct {
	searcher     TextSearcher
	defaultLimit int
}

func NewSearchHandler(searcher TextSearcher, defaultLimit int) *SearchHandler {
	if defaultLimit <= 0 {
		defaultLimit = 3
	}
	return &SearchHandler{searcher: searcher, defaultLimit: defaultLimit}
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type MatchResponse struct {
	Chunk      *ChunkResponse `json:"chunk"`
	Similarity float64        `json:"similarity"`
}

type SearchResponse struct {
	Query   string           `json:"query"`
	Matches []*MatchResponse `json:"matches"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	matches, err := h.searcher.SearchText(r.Context(), req.Query, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{Query: req.Query, Matches: make([]*MatchResponse, len(matches))}
	for i, m := range matches {
		resp.Matches[i] = &MatchResponse{Chunk: chunkToResponse(m.Chunk), Similarity: m.Similarity}
	}

	api.Success(w, http.StatusOK, resp)
}
