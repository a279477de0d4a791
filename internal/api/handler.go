package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/underwrite"
)

// maxBodyBytes bounds a statement upload.
const maxBodyBytes = 16 << 20

// Consumers reports whether statements queued for a tenant will be scored.
type Consumers interface {
	Serves(tenantID string) bool
}

// Handler holds dependencies for API handlers.
type Handler struct {
	svc       *underwrite.Service
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	consumers Consumers
	version   string
}

// Deps are the collaborators of the HTTP API. Only Service is required.
// Async submissions need both Bus and Consumers.
type Deps struct {
	Service   *underwrite.Service
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Consumers Consumers
	Version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		svc:       deps.Service,
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		consumers: deps.Consumers,
		version:   deps.Version,
	}
}

// AsyncResponse is the response for POST /scorecards/async.
type AsyncResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// StackingResponse is the response for POST /stacking.
type StackingResponse struct {
	Alerts []domain.StackingAlert `json:"alerts"`
}

// ClassifyResponse is the response for POST /classify.
type ClassifyResponse struct {
	Transactions []domain.ClassifiedTransaction `json:"transactions"`
}

// ValidateRequest is the request body for POST /validate.
type ValidateRequest struct {
	Metrics   *domain.AggregatedMetrics `json:"metrics"`
	Scorecard *domain.OverallScorecard  `json:"scorecard,omitempty"`
}

// RulesResponse is the response for GET /rules.
type RulesResponse struct {
	Rules []domain.RedFlagRule `json:"rules"`
	Count int                  `json:"count"`
}

// decodeStatement reads a StatementRequest body and converts its rows.
// It writes the 400 response itself and reports false on failure.
func decodeStatement(w http.ResponseWriter, r *http.Request) ([]domain.Transaction, bool) {
	var req domain.StatementRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return nil, false
	}
	txs, err := req.ToTransactions()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return txs, true
}

// Scorecard handles POST /scorecards.
func (h *Handler) Scorecard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	txs, ok := decodeStatement(w, r)
	if !ok {
		return
	}

	eval, err := h.svc.Evaluate(ctx, tenantID, txs)
	switch {
	case errors.Is(err, underwrite.ErrNoTransactions):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("scorecard evaluation failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "scorecard evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// ScorecardAsync handles POST /scorecards/async. The statement is queued
// on the bus and the result is published on the completed topic.
func (h *Handler) ScorecardAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	if h.consumers == nil || !h.consumers.Serves(tenantID) {
		writeError(w, http.StatusServiceUnavailable, "no worker consumes statements for this tenant")
		return
	}

	txs, ok := decodeStatement(w, r)
	if !ok {
		return
	}
	if len(txs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, underwrite.ErrNoTransactions.Error())
		return
	}

	requestID, _ := ctx.Value(RequestIDKey).(string)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	payload, err := json.Marshal(domain.StatementSubmitted{RequestID: requestID, Transactions: txs})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding statement failed")
		return
	}
	if err := h.bus.Publish(ctx, tenantID, domain.TopicStatementSubmitted, payload); err != nil {
		slog.Error("failed to queue statement", "tenant_id", tenantID, "request_id", requestID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue statement")
		return
	}

	writeJSON(w, http.StatusAccepted, AsyncResponse{RequestID: requestID, Status: "queued"})
}

// GetScorecard handles GET /scorecards/{id}.
func (h *Handler) GetScorecard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	eval, err := h.svc.Get(ctx, GetTenantID(ctx), id)
	switch {
	case errors.Is(err, underwrite.ErrNoRepository):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "evaluation not found")
	case err != nil:
		slog.Error("failed to load evaluation", "evaluation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load evaluation")
	default:
		writeJSON(w, http.StatusOK, eval)
	}
}

// ListScorecards handles GET /scorecards?limit=.
func (h *Handler) ListScorecards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.svc.List(ctx, GetTenantID(ctx), limit)
	switch {
	case errors.Is(err, underwrite.ErrNoRepository):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		slog.Error("failed to list evaluations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list evaluations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"evaluations": list,
		"count":       len(list),
	})
}

// Metrics handles POST /metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	txs, ok := decodeStatement(w, r)
	if !ok {
		return
	}
	m, err := h.svc.Aggregate(txs)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Stacking handles POST /stacking.
func (h *Handler) Stacking(w http.ResponseWriter, r *http.Request) {
	txs, ok := decodeStatement(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, StackingResponse{Alerts: h.svc.Stacking(txs)})
}

// Classify handles POST /classify.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	txs, ok := decodeStatement(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ClassifyResponse{Transactions: h.svc.Classify(txs)})
}

// Validate handles POST /validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Metrics == nil {
		writeError(w, http.StatusBadRequest, "metrics is required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Validate(req.Metrics, req.Scorecard))
}

// ListRules handles GET /rules: the effective red-flag rules for the tenant.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	set, err := h.svc.RedFlagRules(ctx, GetTenantID(ctx))
	if err != nil {
		slog.Error("failed to load red-flag rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules")
		return
	}
	writeJSON(w, http.StatusOK, RulesResponse{Rules: set, Count: len(set)})
}

// SaveRule handles POST /rules: creates or replaces a tenant red-flag rule.
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var rule domain.RedFlagRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	rule.ID = strings.TrimSpace(rule.ID)
	if rule.ID == "" || rule.Expression == "" {
		writeError(w, http.StatusBadRequest, "id and expression are required")
		return
	}

	err := h.svc.SaveRedFlagRule(ctx, tenantID, &rule)
	switch {
	case errors.Is(err, underwrite.ErrNoRepository):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, underwrite.ErrInvalidRule), errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("failed to save red-flag rule", "rule_id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("red-flag rule saved", "tenant_id", tenantID, "rule_id", rule.ID, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, rule)
}

// Health returns the health status of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
