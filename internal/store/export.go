package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/qualifier/internal/model"
)

// ExportAllSessions builds export-ready lead results from all sessions,
// most recently updated first.
func (s *Store) ExportAllSessions(ctx context.Context, questions model.QuestionLookup) ([]model.LeadResult, error) {
	sessions, err := s.ListSessions(ctx, model.SessionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	results := make([]model.LeadResult, 0, len(sessions))
	for _, sess := range sessions {
		results = append(results, model.NewLeadResult(sess, questions))
	}
	return results, nil
}
