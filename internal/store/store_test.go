package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/model"
)

var t0 = time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func saveTestSession(t *testing.T, s *Store, userID string, status model.SessionStatus, updated time.Time, b *model.ScoreBreakdown) {
	t.Helper()
	sess := &model.Session{
		ID:        "sess-" + userID,
		UserID:    userID,
		Status:    status,
		Version:   "2024.11",
		StartedAt: t0,
		UpdatedAt: updated,
		Responses: []model.Response{
			{QuestionID: "budget_range", Value: "20k-50k", AnsweredAt: t0.Add(time.Minute), TimeSpent: 4.5},
		},
	}
	if b != nil {
		done := updated
		sess.CompletedAt = &done
		sess.Score = &b.Total
		sess.ScoreBreakdown = b
	}
	if err := s.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession(%s): %v", userID, err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadSession(ctx, "nobody")
	if !errors.Is(err, model.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	shown := t0.Add(2 * time.Minute)
	sess := &model.Session{
		ID:              "s1",
		UserID:          "u1",
		Status:          model.StatusInProgress,
		Version:         "2024.11",
		StartedAt:       t0,
		UpdatedAt:       t0.Add(2 * time.Minute),
		LastQuestionID:  "features",
		QuestionShownAt: &shown,
		Responses: []model.Response{
			{QuestionID: "project_type", Value: "web-app", AnsweredAt: t0.Add(time.Minute), TimeSpent: 3},
			{QuestionID: "features", Value: []any{"auth", "api"}, AnsweredAt: t0.Add(2 * time.Minute), TimeSpent: 9.25},
		},
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := s.LoadSession(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.ID != "s1" || got.Status != model.StatusInProgress || got.Version != "2024.11" {
		t.Errorf("unexpected session header: %+v", got)
	}
	if !got.StartedAt.Equal(t0) {
		t.Errorf("expected started_at %v, got %v", t0, got.StartedAt)
	}
	if got.QuestionShownAt == nil || !got.QuestionShownAt.Equal(shown) {
		t.Errorf("expected question_shown_at %v, got %v", shown, got.QuestionShownAt)
	}
	if got.CompletedAt != nil || got.Score != nil || got.ScoreBreakdown != nil {
		t.Errorf("expected unscored session, got %+v", got)
	}
	if len(got.Responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(got.Responses))
	}
	list, ok := model.AsStrings(got.Responses[1].Value)
	if !ok || len(list) != 2 || list[1] != "api" {
		t.Errorf("expected features [auth api], got %v", got.Responses[1].Value)
	}
	if got.Responses[1].TimeSpent != 9.25 {
		t.Errorf("expected time spent 9.25, got %v", got.Responses[1].TimeSpent)
	}
}

func TestSaveSessionUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveTestSession(t, s, "u1", model.StatusInProgress, t0, nil)
	b := &model.ScoreBreakdown{Budget: 25, Timeline: 20, Total: 45, Temperature: model.TemperatureQualified}
	saveTestSession(t, s, "u1", model.StatusCompleted, t0.Add(time.Hour), b)

	count, err := s.SessionCount(ctx)
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 session per user, got %d", count)
	}

	got, err := s.LoadSession(ctx, "u1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %q", got.Status)
	}
	if got.Score == nil || *got.Score != 45 {
		t.Errorf("expected score 45, got %v", got.Score)
	}
	if got.ScoreBreakdown == nil || *got.ScoreBreakdown != *b {
		t.Errorf("expected breakdown %+v, got %+v", b, got.ScoreBreakdown)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("unexpected completed_at %v", got.CompletedAt)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hot := &model.ScoreBreakdown{Total: 85, Temperature: model.TemperatureHot}
	cool := &model.ScoreBreakdown{Total: 25, Temperature: model.TemperatureCool}
	saveTestSession(t, s, "a", model.StatusCompleted, t0.Add(1*time.Hour), hot)
	saveTestSession(t, s, "b", model.StatusCompleted, t0.Add(3*time.Hour), cool)
	saveTestSession(t, s, "c", model.StatusInProgress, t0.Add(2*time.Hour), nil)
	saveTestSession(t, s, "d", model.StatusCompleted, t0.Add(4*time.Hour), hot)

	tests := []struct {
		name   string
		filter model.SessionFilter
		want   []string
	}{
		{"no filter newest first", model.SessionFilter{}, []string{"d", "b", "c", "a"}},
		{"completed", model.SessionFilter{Status: model.StatusCompleted}, []string{"d", "b", "a"}},
		{"in progress", model.SessionFilter{Status: model.StatusInProgress}, []string{"c"}},
		{"hot", model.SessionFilter{Temperature: model.TemperatureHot}, []string{"d", "a"}},
		{"hot limited", model.SessionFilter{Temperature: model.TemperatureHot, Limit: 1}, []string{"d"}},
		{"no match", model.SessionFilter{Status: model.StatusInProgress, Temperature: model.TemperatureHot}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := s.ListSessions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListSessions: %v", err)
			}
			var got []string
			for _, sess := range sessions {
				got = append(got, sess.UserID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestListStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveTestSession(t, s, "old", model.StatusInProgress, t0, nil)
	saveTestSession(t, s, "fresh", model.StatusInProgress, t0.Add(48*time.Hour), nil)
	saveTestSession(t, s, "done", model.StatusCompleted, t0, &model.ScoreBreakdown{Total: 50, Temperature: model.TemperatureQualified})

	stale, err := s.ListStale(ctx, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 1 || stale[0].UserID != "old" {
		t.Fatalf("expected only the old in-progress session, got %+v", stale)
	}
	if stale[0].Status != model.StatusInProgress {
		t.Errorf("stale report must not change the status, got %q", stale[0].Status)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetMetadata(ctx, "missing")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	prev, err := s.RecordCatalogVersion(ctx, "2024.11")
	if err != nil {
		t.Fatalf("RecordCatalogVersion: %v", err)
	}
	if prev != "" {
		t.Errorf("expected no previous version, got %q", prev)
	}
	prev, err = s.RecordCatalogVersion(ctx, "2025.01")
	if err != nil {
		t.Fatalf("RecordCatalogVersion: %v", err)
	}
	if prev != "2024.11" {
		t.Errorf("expected previous version 2024.11, got %q", prev)
	}
	v, _ = s.GetMetadata(ctx, catalogVersionKey)
	if v != "2025.01" {
		t.Errorf("expected stored version 2025.01, got %q", v)
	}
}

func TestExportAllSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}

	saveTestSession(t, s, "u1", model.StatusCompleted, t0, &model.ScoreBreakdown{Budget: 25, Total: 25, Temperature: model.TemperatureCool})

	results, err := s.ExportAllSessions(ctx, cat)
	if err != nil {
		t.Fatalf("ExportAllSessions: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.UserID != "u1" || r.SessionID != "sess-u1" {
		t.Errorf("unexpected ids: %+v", r)
	}
	if len(r.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(r.Answers))
	}
	a := r.Answers[0]
	if a.Category != model.CategoryBudget || a.Value != "20k-50k" || a.Title == "" {
		t.Errorf("unexpected answer export: %+v", a)
	}
	if r.Score == nil || r.Score.Temperature != model.TemperatureCool {
		t.Errorf("unexpected score: %+v", r.Score)
	}
}

func TestNewAppliesPragmas(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var timeout int
	if err := s.db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}
