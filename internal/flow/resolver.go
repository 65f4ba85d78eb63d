// Package flow computes which questions a respondent sees, given the
// answers gathered so far, and validates individual answers.
package flow

import (
	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/model"
)

// Resolve returns the question sequence for the given responses.
//
// The walk starts at the first catalog question. After appending a question,
// its branch rules are evaluated in order and the first match jumps forward
// to the rule's target; with no match the walk continues in default order.
// The sequence is rebuilt from scratch on every call, so changing an earlier
// answer re-routes the rest of the flow without duplicating questions.
func Resolve(cat *catalog.Catalog, responses map[string]any) []model.Question {
	questions := cat.Questions
	seq := make([]model.Question, 0, len(questions))
	for i := 0; i < len(questions); {
		q := questions[i]
		seq = append(seq, q)
		i = nextIndex(cat, i, q, responses)
	}
	return seq
}

func nextIndex(cat *catalog.Catalog, i int, q model.Question, responses map[string]any) int {
	for _, rule := range q.Branching {
		if !Evaluate(rule.Condition, responses) {
			continue
		}
		// Jumps only move forward; anything else would let a bad catalog loop.
		if target := cat.Index(rule.NextQuestionID); target > i {
			return target
		}
		return i + 1
	}
	return i + 1
}

// IDs returns the question ids of a sequence.
func IDs(seq []model.Question) []string {
	ids := make([]string, len(seq))
	for i, q := range seq {
		ids[i] = q.ID
	}
	return ids
}

// Position returns the index of id in seq, or -1.
func Position(seq []model.Question, id string) int {
	for i, q := range seq {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is part of seq.
func Contains(seq []model.Question, id string) bool {
	return Position(seq, id) >= 0
}

// NextAfter returns the question following id in seq. ok is false when id
// is the last question or not in seq.
func NextAfter(seq []model.Question, id string) (model.Question, bool) {
	pos := Position(seq, id)
	if pos < 0 || pos+1 >= len(seq) {
		return model.Question{}, false
	}
	return seq[pos+1], true
}

// FirstUnanswered returns the first question in seq without a response.
func FirstUnanswered(seq []model.Question, responses map[string]any) (model.Question, bool) {
	for _, q := range seq {
		if _, answered := responses[q.ID]; !answered {
			return q, true
		}
	}
	return model.Question{}, false
}

// MissingRequired returns the required questions in seq that have no
// non-empty response, in flow order.
func MissingRequired(seq []model.Question, responses map[string]any) []model.Question {
	var missing []model.Question
	for _, q := range seq {
		if !q.Required {
			continue
		}
		if v, ok := responses[q.ID]; !ok || model.IsEmpty(v) {
			missing = append(missing, q)
		}
	}
	return missing
}
