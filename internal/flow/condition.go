package flow

import (
	"strings"

	"github.com/pavelanni/qualifier/internal/model"
)

// Evaluate reports whether cond holds for the given responses. A condition
// on an unanswered question never holds.
func Evaluate(cond model.Condition, responses map[string]any) bool {
	answer, ok := responses[cond.QuestionID]
	if !ok || answer == nil {
		return false
	}

	switch cond.Operator {
	case model.OpEquals:
		return equals(answer, cond.Value)
	case model.OpContains:
		return contains(answer, cond.Value)
	case model.OpGreaterThan:
		a, okA := model.AsNumber(answer)
		b, okB := model.AsNumber(cond.Value)
		return okA && okB && a > b
	case model.OpLessThan:
		a, okA := model.AsNumber(answer)
		b, okB := model.AsNumber(cond.Value)
		return okA && okB && a < b
	}
	return false
}

func equals(answer, want any) bool {
	if model.IsList(answer) {
		list, ok := model.AsStrings(answer)
		if !ok || len(list) != 1 {
			return false
		}
		answer = list[0]
	}
	// Two strings compare as text, so "007" and "7" differ.
	if isNumber(answer) || isNumber(want) {
		a, okA := model.AsNumber(answer)
		b, okB := model.AsNumber(want)
		if okA && okB {
			return a == b
		}
	}
	a, okA := model.AsString(answer)
	b, okB := model.AsString(want)
	if !okA || !okB {
		return false
	}
	if a == b {
		return true
	}
	return truthy(a) != "" && truthy(a) == truthy(b)
}

func isNumber(v any) bool {
	if _, ok := v.(string); ok {
		return false
	}
	_, ok := model.AsNumber(v)
	return ok
}

// truthy folds the spellings of a yes/no answer onto "yes" or "no".
func truthy(s string) string {
	switch strings.ToLower(s) {
	case "yes", "true":
		return "yes"
	case "no", "false":
		return "no"
	}
	return ""
}

func contains(answer, want any) bool {
	needle, ok := model.AsString(want)
	if !ok {
		return false
	}
	if model.IsList(answer) {
		list, ok := model.AsStrings(answer)
		if !ok {
			return false
		}
		for _, item := range list {
			if equals(item, want) {
				return true
			}
		}
		return false
	}
	s, ok := model.AsString(answer)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
}
