package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pavelanni/qualifier/internal/model"
)

// ValidationCode identifies why an answer was rejected. Codes double as
// translation message ids.
type ValidationCode string

const (
	CodeRequired ValidationCode = "validation.required"
	CodeType     ValidationCode = "validation.type"
	CodeOption   ValidationCode = "validation.option"
	CodeMin      ValidationCode = "validation.min"
	CodeMax      ValidationCode = "validation.max"
	CodeMinLen   ValidationCode = "validation.min_length"
	CodeMaxLen   ValidationCode = "validation.max_length"
	CodePattern  ValidationCode = "validation.pattern"
)

// ValidationError is returned when an answer does not satisfy its question.
// It blocks advancing and is meant to be shown next to the question.
type ValidationError struct {
	QuestionID string
	Code       ValidationCode
	Message    string
	Custom     bool // Message came from the catalog's customMessage
	Params     map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %s: %s", e.QuestionID, e.Message)
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func compiled(pattern string) (*regexp.Regexp, error) {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache[pattern] = re
	return re, nil
}

// Validate checks value against the question's type, required flag and
// validation rules. It returns nil or a *ValidationError.
func Validate(q model.Question, value any) error {
	fail := func(code ValidationCode, msg string, params map[string]any) error {
		e := &ValidationError{QuestionID: q.ID, Code: code, Message: msg, Params: params}
		if q.Validation != nil && q.Validation.CustomMessage != "" {
			e.Message = q.Validation.CustomMessage
			e.Custom = true
		}
		return e
	}

	if model.IsEmpty(value) {
		if q.Required {
			return fail(CodeRequired, "this question is required", nil)
		}
		return nil
	}

	switch q.Type {
	case model.TypeText, model.TypeTextarea:
		s, ok := value.(string)
		if !ok {
			return fail(CodeType, "expected a text answer", nil)
		}
		return validateText(q, strings.TrimSpace(s), fail)

	case model.TypeSelect, model.TypeCardSelect, model.TypeYesNo:
		if model.IsList(value) {
			return fail(CodeType, "expected a single choice", nil)
		}
		s, ok := model.AsString(value)
		if !ok {
			return fail(CodeType, "expected a single choice", nil)
		}
		if _, ok := q.Option(s); !ok {
			return fail(CodeOption, fmt.Sprintf("%q is not one of the available options", s),
				map[string]any{"Value": s})
		}

	case model.TypeMultiSelect:
		list, ok := model.AsStrings(value)
		if !ok || !model.IsList(value) {
			return fail(CodeType, "expected a list of choices", nil)
		}
		for _, s := range list {
			if _, ok := q.Option(s); !ok {
				return fail(CodeOption, fmt.Sprintf("%q is not one of the available options", s),
					map[string]any{"Value": s})
			}
		}

	case model.TypeSlider:
		n, ok := model.AsNumber(value)
		if !ok {
			return fail(CodeType, "expected a number", nil)
		}
		if v := q.Validation; v != nil {
			if v.Min != nil && n < *v.Min {
				return fail(CodeMin, "must be at least "+formatNum(*v.Min), map[string]any{"Min": formatNum(*v.Min)})
			}
			if v.Max != nil && n > *v.Max {
				return fail(CodeMax, "must be at most "+formatNum(*v.Max), map[string]any{"Max": formatNum(*v.Max)})
			}
		}

	case model.TypeFileUpload:
		if _, ok := model.AsStrings(value); !ok {
			return fail(CodeType, "expected one or more file references", nil)
		}
	}
	return nil
}

func validateText(q model.Question, s string, fail func(ValidationCode, string, map[string]any) error) error {
	v := q.Validation
	if v == nil {
		return nil
	}
	n := float64(utf8.RuneCountInString(s))
	if v.Min != nil && n < *v.Min {
		return fail(CodeMinLen, "must be at least "+formatNum(*v.Min)+" characters",
			map[string]any{"Min": formatNum(*v.Min)})
	}
	if v.Max != nil && n > *v.Max {
		return fail(CodeMaxLen, "must be at most "+formatNum(*v.Max)+" characters",
			map[string]any{"Max": formatNum(*v.Max)})
	}
	if v.Pattern != "" {
		re, err := compiled(v.Pattern)
		if err != nil {
			return nil // rejected when the catalog is validated
		}
		if !re.MatchString(s) {
			return fail(CodePattern, "has an invalid format", nil)
		}
	}
	return nil
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
