// Package handler exposes the questionnaire and lead review over a JSON API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qualifier/internal/auth"
	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/flow"
	"github.com/pavelanni/qualifier/internal/i18n"
	"github.com/pavelanni/qualifier/internal/llm"
	"github.com/pavelanni/qualifier/internal/llm/prompts"
	"github.com/pavelanni/qualifier/internal/model"
	"github.com/pavelanni/qualifier/internal/session"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// defaultStaleAfter is used when the config leaves StaleAfter unset.
const defaultStaleAfter = 72 * time.Hour

// LeadStore is the read side the admin routes need. Both session stores
// implement it.
type LeadStore interface {
	LoadSession(ctx context.Context, userID string) (*model.Session, error)
	ListSessions(ctx context.Context, f model.SessionFilter) ([]model.Session, error)
	ListStale(ctx context.Context, before time.Time) ([]model.Session, error)
}

// Briefer writes a sales brief for a lead.
type Briefer interface {
	BriefLead(ctx context.Context, variant prompts.Variant, s model.Session, cat *catalog.Catalog) (*llm.Brief, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	manager *session.Manager
	leads   LeadStore
	briefer Briefer
	tokens  *auth.Tokens
	admin   *auth.Admin
	config  model.ServiceConfig
	now     func() time.Time
}

// New creates a new Handler. briefer may be nil, in which case lead briefs
// answer 503.
func New(m *session.Manager, leads LeadStore, briefer Briefer, tokens *auth.Tokens, admin *auth.Admin, cfg model.ServiceConfig) (*Handler, error) {
	if m == nil || leads == nil {
		return nil, errors.New("handler: manager and lead store are required")
	}
	if tokens == nil {
		return nil, errors.New("handler: token service is required")
	}
	if admin == nil {
		admin = auth.NewAdmin("", "")
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.BriefVariant == "" {
		cfg.BriefVariant = string(prompts.VariantConcise)
	}
	return &Handler{
		manager: m,
		leads:   leads,
		briefer: briefer,
		tokens:  tokens,
		admin:   admin,
		config:  cfg,
		now:     time.Now,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(i18n.Middleware)

	r.Get("/healthz", h.handleHealth)
	r.Get("/api/catalog", h.handleCatalog)
	r.Post("/api/score", h.handleScore)

	r.Group(func(r chi.Router) {
		r.Use(h.tokens.Middleware)
		r.Post("/api/questionnaire/start", h.handleStart)
		r.Get("/api/questionnaire", h.handleProgress)
		r.Post("/api/questionnaire/answers", h.handleAnswer)
		r.Post("/api/questionnaire/skip", h.handleSkip)
		r.Get("/api/questionnaire/results", h.handleResults)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.admin.Middleware)
		r.Get("/admin/leads", h.handleListLeads)
		r.Get("/admin/leads/stale", h.handleStaleLeads)
		r.Get("/admin/leads/{userID}", h.handleGetLead)
		r.Post("/admin/leads/{userID}/brief", h.handleBrief)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"catalog": h.manager.Catalog().Version,
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps engine errors to status codes and localized messages.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var ve *flow.ValidationError
	if errors.As(err, &ve) {
		msg := ve.Message
		if !ve.Custom {
			msg = i18n.Localize(ctx, string(ve.Code), ve.Params, ve.Message)
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: string(ve.Code), QuestionID: ve.QuestionID})
		return
	}

	var pe *session.PersistenceError
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		writeCoded(w, r, http.StatusNotFound, "error.session_not_found", err)
	case errors.Is(err, session.ErrSessionCompleted):
		writeCoded(w, r, http.StatusConflict, "error.session_completed", err)
	case errors.Is(err, session.ErrNotInProgress):
		writeCoded(w, r, http.StatusConflict, "error.not_in_progress", err)
	case errors.Is(err, session.ErrNotCompleted):
		writeCoded(w, r, http.StatusConflict, "error.not_completed", err)
	case errors.Is(err, session.ErrQuestionNotInFlow):
		writeCoded(w, r, http.StatusUnprocessableEntity, "error.not_in_flow", err)
	case errors.As(err, &pe):
		slog.Error("session store failure", "op", pe.Op, "error", pe.Err)
		writeCoded(w, r, http.StatusServiceUnavailable, "error.unavailable", err)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeCoded(w http.ResponseWriter, r *http.Request, status int, msgID string, err error) {
	writeJSON(w, status, errorBody{
		Error: i18n.Localize(r.Context(), msgID, nil, err.Error()),
		Code:  msgID,
	})
}
