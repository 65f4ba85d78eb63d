package handler

import (
	"net/http"
	"strings"

	"github.com/pavelanni/qualifier/internal/i18n"
	"github.com/pavelanni/qualifier/internal/model"
	"github.com/pavelanni/qualifier/internal/session"
)

// progressResponse adds display strings to a session.Progress.
type progressResponse struct {
	*session.Progress
	Remaining        string `json:"remaining,omitempty"`
	TemperatureLabel string `json:"temperatureLabel"`
}

type scoreResponse struct {
	model.ScoreBreakdown
	TemperatureLabel string `json:"temperatureLabel"`
}

func temperatureLabel(r *http.Request, t model.Temperature) string {
	if t == "" {
		return ""
	}
	return i18n.T(r.Context(), "temperature."+string(t))
}

func (h *Handler) writeProgress(w http.ResponseWriter, r *http.Request, status int, p *session.Progress) {
	resp := progressResponse{
		Progress:         p,
		TemperatureLabel: temperatureLabel(r, p.Estimate.Temperature),
	}
	if !p.Completed && p.Total > 0 {
		resp.Remaining = i18n.Tp(r.Context(), "questions_remaining", p.Total-p.Position)
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Catalog())
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Responses map[string]any `json:"responses"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	b := h.manager.Estimate(req.Responses)
	writeJSON(w, http.StatusOK, scoreResponse{
		ScoreBreakdown:   b,
		TemperatureLabel: temperatureLabel(r, b.Temperature),
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.Start(r.Context(), model.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeProgress(w, r, http.StatusOK, p)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.Resume(r.Context(), model.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeProgress(w, r, http.StatusOK, p)
}

type answerRequest struct {
	QuestionID string  `json:"questionId"`
	Value      any     `json:"value"`
	TimeSpent  float64 `json:"timeSpent"`
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.QuestionID = strings.TrimSpace(req.QuestionID)
	if req.QuestionID == "" {
		badRequest(w, "questionId is required")
		return
	}

	userID := model.UserIDFromContext(r.Context())
	p, err := h.manager.Answer(r.Context(), userID, req.QuestionID, req.Value, req.TimeSpent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeProgress(w, r, http.StatusOK, p)
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.QuestionID = strings.TrimSpace(req.QuestionID)
	if req.QuestionID == "" {
		badRequest(w, "questionId is required")
		return
	}

	p, err := h.manager.Skip(r.Context(), model.UserIDFromContext(r.Context()), req.QuestionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeProgress(w, r, http.StatusOK, p)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Results(r.Context(), model.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.LeadResult
		TemperatureLabel string `json:"temperatureLabel"`
	}{
		LeadResult:       model.NewLeadResult(*s, h.manager.Catalog()),
		TemperatureLabel: temperatureLabel(r, s.Temperature()),
	})
}
