package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/qualifier/internal/llm"
	"github.com/pavelanni/qualifier/internal/llm/prompts"
	"github.com/pavelanni/qualifier/internal/model"
)

// maxListLimit caps the number of leads a single listing returns.
const maxListLimit = 500

type leadList struct {
	Count int                `json:"count"`
	Leads []model.LeadResult `json:"leads"`
}

type staleReport struct {
	OlderThan string             `json:"olderThan"`
	Before    time.Time          `json:"before"`
	Count     int                `json:"count"`
	Sessions  []model.LeadResult `json:"sessions"`
}

type briefResponse struct {
	UserID  string     `json:"userId"`
	Variant string     `json:"variant"`
	Brief   *llm.Brief `json:"brief"`
}

func (h *Handler) leadResults(sessions []model.Session) []model.LeadResult {
	out := make([]model.LeadResult, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, model.NewLeadResult(s, h.manager.Catalog()))
	}
	return out
}

func parseFilter(r *http.Request) (model.SessionFilter, error) {
	q := r.URL.Query()
	f := model.SessionFilter{
		Status:      model.SessionStatus(q.Get("status")),
		Temperature: model.Temperature(q.Get("temperature")),
		Limit:       100,
	}
	switch f.Status {
	case "", model.StatusInProgress, model.StatusCompleted, model.StatusAbandoned:
	default:
		return f, errors.New("unknown status " + strconv.Quote(string(f.Status)))
	}
	if f.Temperature != "" && f.Temperature.Rank() == 0 && f.Temperature != model.TemperatureEarly {
		return f, errors.New("unknown temperature " + strconv.Quote(string(f.Temperature)))
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func (h *Handler) handleListLeads(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	sessions, err := h.leads.ListSessions(r.Context(), f)
	if err != nil {
		slog.Error("failed to list leads", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "lead store unavailable"})
		return
	}
	leads := h.leadResults(sessions)
	writeJSON(w, http.StatusOK, leadList{Count: len(leads), Leads: leads})
}

// handleStaleLeads reports in-progress sessions untouched for longer than
// older_than. The report is read-only; sessions keep their stored status.
func (h *Handler) handleStaleLeads(w http.ResponseWriter, r *http.Request) {
	olderThan := h.config.StaleAfter
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			badRequest(w, "older_than must be a positive duration such as 72h")
			return
		}
		olderThan = d
	}

	before := h.now().UTC().Add(-olderThan)
	sessions, err := h.leads.ListStale(r.Context(), before)
	if err != nil {
		slog.Error("failed to list stale sessions", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "lead store unavailable"})
		return
	}
	report := h.leadResults(sessions)
	for i := range report {
		report[i].Status = model.StatusAbandoned
	}
	writeJSON(w, http.StatusOK, staleReport{
		OlderThan: olderThan.String(),
		Before:    before,
		Count:     len(report),
		Sessions:  report,
	})
}

func (h *Handler) loadLead(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	userID := chi.URLParam(r, "userID")
	s, err := h.leads.LoadSession(r.Context(), userID)
	if errors.Is(err, model.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no session for user " + strconv.Quote(userID)})
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load lead", "user", userID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "lead store unavailable"})
		return nil, false
	}
	return s, true
}

func (h *Handler) handleGetLead(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadLead(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.NewLeadResult(*s, h.manager.Catalog()))
}

func (h *Handler) handleBrief(w http.ResponseWriter, r *http.Request) {
	if h.briefer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "lead briefs are not configured"})
		return
	}
	variant := h.config.BriefVariant
	if v := r.URL.Query().Get("variant"); v != "" {
		variant = v
	}
	if !prompts.IsValidVariant(variant) {
		badRequest(w, "unknown brief variant "+strconv.Quote(variant))
		return
	}

	s, ok := h.loadLead(w, r)
	if !ok {
		return
	}
	brief, err := h.briefer.BriefLead(r.Context(), prompts.Variant(variant), *s, h.manager.Catalog())
	if err != nil {
		slog.Error("lead brief failed", "user", s.UserID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "could not generate brief"})
		return
	}
	slog.Info("generated lead brief", "user", s.UserID, "variant", variant)
	writeJSON(w, http.StatusOK, briefResponse{UserID: s.UserID, Variant: variant, Brief: brief})
}
