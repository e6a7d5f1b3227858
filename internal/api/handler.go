package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/opensource-finance/repayplan/internal/domain"
	"github.com/opensource-finance/repayplan/internal/report"
	"github.com/opensource-finance/repayplan/internal/repository"
	"github.com/opensource-finance/repayplan/internal/rules"
)

// maxBodyBytes bounds request bodies; form snapshots and rules documents are small.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	assessor *report.Assessor
	registry *rules.Registry
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	version  string
}

// NewHandler creates a new API handler. Repository, cache and bus are taken
// from the assessor and may be nil.
func NewHandler(assessor *report.Assessor, bus domain.EventBus, version string) *Handler {
	return &Handler{
		assessor: assessor,
		registry: assessor.Registry,
		repo:     assessor.Repo,
		cache:    assessor.Cache,
		bus:      bus,
		version:  version,
	}
}

// AsyncResponse is returned by POST /assessments/async.
type AsyncResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Topic     string `json:"topic"`
}

// Assess handles POST /assessments.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = GetRequestID(ctx)
	}

	record, err := h.assessor.Assess(ctx, &report.Request{
		RequestID:    requestID,
		TraceID:      GetTraceID(ctx),
		RulesVersion: req.RulesVersion,
		Input:        req.Input,
		StartTime:    start,
	})
	if err != nil {
		writePolicyError(w, err)
		return
	}

	if err := report.Announce(ctx, h.bus, record); err != nil {
		slog.Error("failed to announce assessment",
			"assessment_id", record.ID,
			"error", err,
		)
	}

	writeJSON(w, http.StatusOK, record)
}

// AssessAsync handles POST /assessments/async.
func (h *Handler) AssessAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	// Fail fast on a version the worker could not resolve either.
	if _, err := h.registry.Lookup(req.RulesVersion); err != nil {
		writePolicyError(w, err)
		return
	}

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	req.TraceID = GetTraceID(ctx)

	payload, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode request")
		return
	}
	if err := h.bus.Publish(ctx, domain.TopicAssessmentRequested, payload); err != nil {
		slog.Error("failed to publish assessment request",
			"request_id", req.RequestID,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, "failed to queue assessment")
		return
	}

	writeJSON(w, http.StatusAccepted, AsyncResponse{
		RequestID: req.RequestID,
		Status:    "accepted",
		Topic:     domain.TopicAssessmentCompleted,
	})
}

// GetAssessment handles GET /assessments/{id}.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "assessment id is required")
		return
	}
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	a, err := h.repo.GetAssessment(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "assessment not found")
		return
	}
	if err != nil {
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load assessment")
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListAssessments handles GET /assessments?limit=.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := h.repo.ListAssessments(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list assessments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": list,
		"count":       len(list),
	})
}

// RulesSummary describes one loaded rules version.
type RulesSummary struct {
	Version     string    `json:"version"`
	Active      bool      `json:"active"`
	CustomGates int       `json:"customGates"`
	LoadedAt    time.Time `json:"loadedAt"`
}

// ListRules returns the versions loaded in the registry.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	active := h.registry.ActiveVersion()
	versions := h.registry.Versions()

	summaries := make([]RulesSummary, 0, len(versions))
	for _, v := range versions {
		p, err := h.registry.Get(v)
		if err != nil {
			continue
		}
		summaries = append(summaries, RulesSummary{
			Version:     v,
			Active:      v == active,
			CustomGates: len(p.Gates),
			LoadedAt:    p.LoadedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  summaries,
		"active": active,
		"count":  len(summaries),
	})
}

// GetRules returns one loaded rules document.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")

	p, err := h.registry.Get(version)
	if err != nil {
		writeError(w, http.StatusNotFound, "rules version not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":  p.Version(),
		"active":   p.Version() == h.registry.ActiveVersion(),
		"document": p.Document,
	})
}

// CreateRules validates, compiles, persists and loads a rules document.
// A new version does not become active unless it is the first one loaded.
func (h *Handler) CreateRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	doc, err := rules.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.registry.Validate(doc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRulesDocument(ctx, doc); err != nil {
			slog.Error("failed to save rules document", "version", doc.Version, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save rules document")
			return
		}
	}

	p, err := h.registry.Load(doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("rules document loaded",
		"version", p.Version(),
		"custom_gates", len(p.Gates),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"version": p.Version(),
		"active":  p.Version() == h.registry.ActiveVersion(),
	})
}

// ActivateRequest is the body of PUT /rules/active.
type ActivateRequest struct {
	Version string `json:"version"`
}

// ActivateRules switches the active rules version and records it.
func (h *Handler) ActivateRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ActivateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Version == "" {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}

	p, err := h.registry.Get(req.Version)
	if err != nil {
		writeError(w, http.StatusNotFound, "rules version not found")
		return
	}

	if h.repo != nil {
		err := h.repo.SetActiveRulesVersion(ctx, req.Version)
		if errors.Is(err, repository.ErrNotFound) {
			// Loaded from a file or URL and never stored.
			if err = h.repo.SaveRulesDocument(ctx, p.Document); err == nil {
				err = h.repo.SetActiveRulesVersion(ctx, req.Version)
			}
		}
		if err != nil {
			slog.Error("failed to persist active rules version", "version", req.Version, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to activate rules version")
			return
		}
	}

	if err := h.registry.SetActive(req.Version); err != nil {
		writeError(w, http.StatusNotFound, "rules version not found")
		return
	}

	slog.Info("rules version activated", "version", req.Version)
	writeJSON(w, http.StatusOK, map[string]string{"active": req.Version})
}

// ReloadRules replaces the registry with every stored document.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	stored, err := h.repo.ListRulesDocuments(ctx)
	if err != nil {
		slog.Error("failed to list rules documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules documents")
		return
	}
	if len(stored) == 0 {
		writeError(w, http.StatusConflict, "no stored rules documents")
		return
	}

	docs := make([]*domain.RulesDocument, 0, len(stored))
	active := ""
	for _, s := range stored {
		docs = append(docs, s.Document)
		if s.Active {
			active = s.Version
		}
	}

	if err := h.registry.Reload(docs, active); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from repository",
		"count", len(docs),
		"active", h.registry.ActiveVersion(),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(docs),
		"active": h.registry.ActiveVersion(),
	})
}

// Health returns server health status.
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

// Ready reports whether an active policy is loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	active := h.registry.ActiveVersion()
	if active == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready":        "true",
		"rulesVersion": active,
	})
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*domain.AssessmentRequest, bool) {
	var req domain.AssessmentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return nil, false
	}
	if req.Input == nil {
		writeError(w, http.StatusBadRequest, "input is required")
		return nil, false
	}
	return &req, true
}

func writePolicyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrUnknownVersion):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rules.ErrNoActivePolicy):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("assessment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "assessment failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
