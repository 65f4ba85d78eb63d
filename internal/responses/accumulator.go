// Package responses holds the per-session working set of answers.
package responses

import (
	"sort"
	"time"

	"github.com/pavelanni/qualifier/internal/model"
)

// Accumulator is the questionId→answer map of one session. It does not
// validate; callers check answers before recording them.
type Accumulator struct {
	entries map[string]model.Response
	now     func() time.Time
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{entries: map[string]model.Response{}, now: time.Now}
}

// FromList rebuilds an accumulator from persisted responses. When a question
// appears more than once the later entry wins.
func FromList(list []model.Response) *Accumulator {
	a := New()
	for _, r := range list {
		a.entries[r.QuestionID] = r
	}
	return a
}

// WithClock replaces the time source used to stamp answers.
func (a *Accumulator) WithClock(now func() time.Time) *Accumulator {
	a.now = now
	return a
}

// Record upserts the answer to questionID. Re-answering overwrites.
func (a *Accumulator) Record(questionID string, value any, timeSpent float64) model.Response {
	if timeSpent < 0 {
		timeSpent = 0
	}
	r := model.Response{
		QuestionID: questionID,
		Value:      value,
		AnsweredAt: a.now().UTC(),
		TimeSpent:  timeSpent,
	}
	a.entries[questionID] = r
	return r
}

// Get returns the recorded response for questionID.
func (a *Accumulator) Get(questionID string) (model.Response, bool) {
	r, ok := a.entries[questionID]
	return r, ok
}

// Remove forgets the answer to questionID.
func (a *Accumulator) Remove(questionID string) {
	delete(a.entries, questionID)
}

func (a *Accumulator) Len() int { return len(a.entries) }

// Values returns the questionId→value map consumed by the resolver and the
// scorer.
func (a *Accumulator) Values() map[string]any {
	out := make(map[string]any, len(a.entries))
	for id, r := range a.entries {
		out[id] = r.Value
	}
	return out
}

// Restrict returns a copy holding only the answers to the given questions.
func (a *Accumulator) Restrict(ids []string) *Accumulator {
	out := &Accumulator{entries: map[string]model.Response{}, now: a.now}
	for _, id := range ids {
		if r, ok := a.entries[id]; ok {
			out.entries[id] = r
		}
	}
	return out
}

// List returns the responses ordered by answer time, ties broken by question id.
func (a *Accumulator) List() []model.Response {
	out := make([]model.Response, 0, len(a.entries))
	for _, r := range a.entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnsweredAt.Equal(out[j].AnsweredAt) {
			return out[i].AnsweredAt.Before(out[j].AnsweredAt)
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}
