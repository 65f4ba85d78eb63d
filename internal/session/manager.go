// Package session drives a respondent through the questionnaire and is the
// only writer of session records.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/flow"
	"github.com/pavelanni/qualifier/internal/model"
	"github.com/pavelanni/qualifier/internal/responses"
	"github.com/pavelanni/qualifier/internal/scoring"
)

// Store persists sessions keyed by user id. LoadSession returns
// model.ErrSessionNotFound when the user has none.
type Store interface {
	LoadSession(ctx context.Context, userID string) (*model.Session, error)
	SaveSession(ctx context.Context, s *model.Session) error
}

// Progress is what a respondent sees: the session plus the question to
// answer next.
type Progress struct {
	Session   *model.Session       `json:"session"`
	Current   *model.Question      `json:"current,omitempty"`
	Flow      []string             `json:"flow"`
	Position  int                  `json:"position"`
	Total     int                  `json:"total"`
	Completed bool                 `json:"completed"`
	Estimate  model.ScoreBreakdown `json:"estimate"`
}

// Manager orchestrates session creation, resume, answering and completion.
type Manager struct {
	store Store
	cat   *catalog.Catalog
	now   func() time.Time
	newID func() string
}

// NewManager returns a manager serving questions from cat.
func NewManager(store Store, cat *catalog.Catalog) *Manager {
	return &Manager{store: store, cat: cat, now: time.Now, newID: uuid.NewString}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Catalog returns the catalog the manager serves.
func (m *Manager) Catalog() *catalog.Catalog { return m.cat }

func (m *Manager) load(ctx context.Context, userID string) (*model.Session, error) {
	s, err := m.store.LoadSession(ctx, userID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	return s, nil
}

func (m *Manager) save(ctx context.Context, s *model.Session) error {
	s.UpdatedAt = m.now().UTC()
	if err := m.store.SaveSession(ctx, s); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// Start opens the questionnaire for userID. A first visit creates the
// session; an unfinished session resumes; a completed session is returned
// as is without being scored again.
func (m *Manager) Start(ctx context.Context, userID string) (*Progress, error) {
	s, err := m.load(ctx, userID)
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return m.create(ctx, userID)
	case err != nil:
		return nil, err
	}

	switch s.Status {
	case model.StatusCompleted:
		return m.completedProgress(s), nil
	case model.StatusAbandoned:
		slog.Info("reopening abandoned session", "user", userID, "session", s.ID)
		s.Status = model.StatusInProgress
	}
	return m.resume(ctx, s, true)
}

// Resume returns the current progress of userID without creating a session.
func (m *Manager) Resume(ctx context.Context, userID string) (*Progress, error) {
	s, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.Status == model.StatusCompleted {
		return m.completedProgress(s), nil
	}
	return m.resume(ctx, s, false)
}

func (m *Manager) create(ctx context.Context, userID string) (*Progress, error) {
	now := m.now().UTC()
	s := &model.Session{
		ID:        m.newID(),
		UserID:    userID,
		Status:    model.StatusInProgress,
		Version:   m.cat.Version,
		StartedAt: now,
		Responses: []model.Response{},
	}
	acc := responses.New()
	seq := flow.Resolve(m.cat, acc.Values())
	if len(seq) > 0 {
		m.show(s, seq[0].ID)
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	slog.Info("session started", "user", userID, "session", s.ID, "version", s.Version)
	return m.progress(s, acc, seq), nil
}

// resume repairs the resume pointer against the current catalog. With
// restamp the question is considered shown again and the session is saved.
func (m *Manager) resume(ctx context.Context, s *model.Session, restamp bool) (*Progress, error) {
	dirty := m.reconcileVersion(s)
	acc := m.accumulator(s)
	seq := flow.Resolve(m.cat, acc.Values())

	current := s.LastQuestionID
	if current == "" || !flow.Contains(seq, current) {
		if current != "" {
			drift := &SchemaDriftError{UserID: s.UserID, QuestionID: current, Version: m.cat.Version}
			slog.Warn("restarting at first unanswered question", "error", drift)
		}
		current = ""
		if q, ok := flow.FirstUnanswered(seq, acc.Values()); ok {
			current = q.ID
		}
		dirty = true
	}

	if current == "" {
		// Nothing left to ask: the session finishes now.
		if missing := flow.MissingRequired(seq, acc.Values()); len(missing) > 0 {
			current = missing[0].ID
		} else {
			m.complete(s, acc, seq)
			if err := m.save(ctx, s); err != nil {
				return nil, err
			}
			return m.completedProgress(s), nil
		}
	}

	if restamp || dirty {
		m.show(s, current)
		if err := m.save(ctx, s); err != nil {
			return nil, err
		}
	}
	return m.progress(s, acc, seq), nil
}

// Answer records value as the answer to questionID, persists the session and
// advances it. Answering the last question of the flow completes the session.
// timeSpent is in seconds; zero or less means "measure it".
func (m *Manager) Answer(ctx context.Context, userID, questionID string, value any, timeSpent float64) (*Progress, error) {
	s, acc, err := m.loadActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	seq := flow.Resolve(m.cat, acc.Values())
	if !flow.Contains(seq, questionID) {
		return nil, ErrQuestionNotInFlow
	}
	q, _ := m.cat.Get(questionID)
	if err := flow.Validate(q, value); err != nil {
		return nil, err
	}

	if timeSpent <= 0 {
		timeSpent = m.measured(s, questionID)
	}
	acc.Record(questionID, value, timeSpent)
	return m.advance(ctx, s, acc, questionID)
}

// Skip moves past an optional question, clearing any earlier answer to it.
func (m *Manager) Skip(ctx context.Context, userID, questionID string) (*Progress, error) {
	s, acc, err := m.loadActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	seq := flow.Resolve(m.cat, acc.Values())
	if !flow.Contains(seq, questionID) {
		return nil, ErrQuestionNotInFlow
	}
	q, _ := m.cat.Get(questionID)
	if err := flow.Validate(q, nil); err != nil {
		return nil, err
	}
	acc.Remove(questionID)
	return m.advance(ctx, s, acc, questionID)
}

// Results returns the scored session of userID.
func (m *Manager) Results(ctx context.Context, userID string) (*model.Session, error) {
	s, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.StatusCompleted {
		return nil, ErrNotCompleted
	}
	return s, nil
}

// Estimate scores a partial response set. Answers that are off the path the
// responses resolve to are not counted.
func (m *Manager) Estimate(values map[string]any) model.ScoreBreakdown {
	seq := flow.Resolve(m.cat, values)
	on := make(map[string]any, len(values))
	for _, id := range flow.IDs(seq) {
		if v, ok := values[id]; ok {
			on[id] = v
		}
	}
	return scoring.Calculate(m.cat, on)
}

func (m *Manager) loadActive(ctx context.Context, userID string) (*model.Session, *responses.Accumulator, error) {
	s, err := m.load(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	switch s.Status {
	case model.StatusCompleted:
		return nil, nil, ErrSessionCompleted
	case model.StatusInProgress:
	default:
		return nil, nil, ErrNotInProgress
	}
	m.reconcileVersion(s)
	return s, m.accumulator(s), nil
}

func (m *Manager) advance(ctx context.Context, s *model.Session, acc *responses.Accumulator, answered string) (*Progress, error) {
	seq := flow.Resolve(m.cat, acc.Values())
	s.Responses = acc.List()

	var next string
	if q, ok := flow.NextAfter(seq, answered); ok {
		next = q.ID
	} else if missing := flow.MissingRequired(seq, acc.Values()); len(missing) > 0 {
		next = missing[0].ID
	}

	if next == "" {
		m.complete(s, acc, seq)
		if err := m.save(ctx, s); err != nil {
			return nil, err
		}
		slog.Info("session completed", "user", s.UserID, "session", s.ID,
			"score", s.ScoreBreakdown.Total, "temperature", s.ScoreBreakdown.Temperature)
		return m.completedProgress(s), nil
	}

	m.show(s, next)
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	return m.progress(s, acc, seq), nil
}

// complete scores the answers on the resolved path and closes the session.
func (m *Manager) complete(s *model.Session, acc *responses.Accumulator, seq []model.Question) {
	b := scoring.Calculate(m.cat, acc.Restrict(flow.IDs(seq)).Values())
	now := m.now().UTC()
	s.Responses = acc.List()
	s.Status = model.StatusCompleted
	s.CompletedAt = &now
	s.Score = &b.Total
	s.ScoreBreakdown = &b
	s.QuestionShownAt = nil
}

// reconcileVersion re-stamps a session started under another catalog version,
// dropping answers to questions that no longer exist.
func (m *Manager) reconcileVersion(s *model.Session) bool {
	if s.Version == m.cat.Version {
		return false
	}
	kept := s.Responses[:0:0]
	var dropped []string
	for _, r := range s.Responses {
		if m.cat.Has(r.QuestionID) {
			kept = append(kept, r)
		} else {
			dropped = append(dropped, r.QuestionID)
		}
	}
	slog.Warn("catalog version changed for session",
		"user", s.UserID, "from", s.Version, "to", m.cat.Version, "dropped", dropped)
	s.Responses = kept
	s.Version = m.cat.Version
	return true
}

func (m *Manager) accumulator(s *model.Session) *responses.Accumulator {
	return responses.FromList(s.Responses).WithClock(m.now)
}

func (m *Manager) show(s *model.Session, questionID string) {
	now := m.now().UTC()
	s.LastQuestionID = questionID
	s.QuestionShownAt = &now
}

// measured returns the seconds since questionID was shown, or 0 when it was
// not the question on screen.
func (m *Manager) measured(s *model.Session, questionID string) float64 {
	if s.QuestionShownAt == nil || s.LastQuestionID != questionID {
		return 0
	}
	d := m.now().Sub(*s.QuestionShownAt).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

func (m *Manager) progress(s *model.Session, acc *responses.Accumulator, seq []model.Question) *Progress {
	p := &Progress{
		Session:  s,
		Flow:     flow.IDs(seq),
		Total:    len(seq),
		Position: flow.Position(seq, s.LastQuestionID),
		Estimate: scoring.Calculate(m.cat, acc.Restrict(flow.IDs(seq)).Values()),
	}
	if q, ok := m.cat.Get(s.LastQuestionID); ok {
		p.Current = &q
	}
	return p
}

func (m *Manager) completedProgress(s *model.Session) *Progress {
	seq := flow.Resolve(m.cat, responses.FromList(s.Responses).Values())
	p := &Progress{
		Session:   s,
		Flow:      flow.IDs(seq),
		Total:     len(seq),
		Position:  len(seq),
		Completed: true,
	}
	if s.ScoreBreakdown != nil {
		p.Estimate = *s.ScoreBreakdown
	}
	return p
}
