package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/coachkb/internal/api"
	"github.com/cloo-solutions/coachkb/internal/domain"
)

type Evaluator interface {
	Evaluate(ctx context.Context, response string, scenario domain.Scenario) (*domain.EvaluationResult, error)
	EvaluateSemantic(ctx context.Context, response string, scenario domain.Scenario) (*domain.SemanticResult, error)
	TeachingContext(ctx context.Context, scenario domain.Scenario) (*domain.TeachingContext, error)
}

type EvaluateHandler struct {
	evaluator Evaluator
}

func NewEvaluateHandler(evaluator Evaluator) *EvaluateHandler {
	return &EvaluateHandler{evaluator: evaluator}
}

type EvaluateRequest struct {
	Response string           `json:"response"`
	Scenario *domain.Scenario `json:"scenario"`
}

type ContextRequest struct {
	Scenario *domain.Scenario `json:"scenario"`
}

func decodeEvaluateRequest(w http.ResponseWriter, r *http.Request) (*EvaluateRequest, bool) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if req.Scenario == nil {
		api.Error(w, http.StatusBadRequest, "scenario is required")
		return nil, false
	}
	return &req, true
}

func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEvaluateRequest(w, r)
	if !ok {
		return
	}

	result, err := h.evaluator.Evaluate(r.Context(), req.Response, *req.Scenario)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

func (h *EvaluateHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEvaluateRequest(w, r)
	if !ok {
		return
	}

	result, err := h.evaluator.EvaluateSemantic(r.Context(), req.Response, *req.Scenario)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

func (h *EvaluateHandler) Context(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Scenario == nil {
		api.Error(w, http.StatusBadRequest, "scenario is required")
		return
	}

	tc, err := h.evaluator.TeachingContext(r.Context(), *req.Scenario)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, tc)
}
