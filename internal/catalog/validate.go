package catalog

import (
	"errors"
	"fmt"
	"math"
	"regexp"
)

// Validate checks the catalog's structural invariants and reports every
// problem it finds.
func (c *Catalog) Validate() error {
	var errs []error
	if c.Version == "" {
		errs = append(errs, errors.New("catalog version is empty"))
	}
	if len(c.Questions) == 0 {
		errs = append(errs, errors.New("catalog has no questions"))
	}

	seen := make(map[string]bool, len(c.Questions))
	for _, q := range c.Questions {
		if q.ID == "" {
			errs = append(errs, errors.New("question with empty id"))
			continue
		}
		if seen[q.ID] {
			errs = append(errs, fmt.Errorf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = true
	}

	for i, q := range c.Questions {
		if q.ID == "" {
			continue
		}
		if !q.Type.Valid() {
			errs = append(errs, fmt.Errorf("question %q: unknown type %q", q.ID, q.Type))
		}
		if q.Type.IsChoice() && len(q.Options) == 0 {
			errs = append(errs, fmt.Errorf("question %q: %s question has no options", q.ID, q.Type))
		}
		values := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			if o.Value == "" {
				errs = append(errs, fmt.Errorf("question %q: option with empty value", q.ID))
				continue
			}
			if values[o.Value] {
				errs = append(errs, fmt.Errorf("question %q: duplicate option %q", q.ID, o.Value))
			}
			values[o.Value] = true
		}
		if v := q.Validation; v != nil {
			if v.Pattern != "" {
				if _, err := regexp.Compile(v.Pattern); err != nil {
					errs = append(errs, fmt.Errorf("question %q: invalid pattern: %w", q.ID, err))
				}
			}
			if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
				errs = append(errs, fmt.Errorf("question %q: min %v greater than max %v", q.ID, *v.Min, *v.Max))
			}
		}
		if cat := q.Metadata.Category; cat != "" && !cat.Valid() {
			errs = append(errs, fmt.Errorf("question %q: unknown score category %q", q.ID, cat))
		}
		if w := q.Metadata.ScoreWeight; w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			errs = append(errs, fmt.Errorf("question %q: score weight must be a finite non-negative number", q.ID))
		}

		for j, rule := range q.Branching {
			if _, err := rule.Condition.Operator.MarshalText(); err != nil {
				errs = append(errs, fmt.Errorf("question %q rule %d: missing or unknown operator", q.ID, j))
			}
			if !c.Has(rule.Condition.QuestionID) {
				errs = append(errs, fmt.Errorf("question %q rule %d: condition references unknown question %q",
					q.ID, j, rule.Condition.QuestionID))
			}
			target := c.Index(rule.NextQuestionID)
			switch {
			case target < 0:
				errs = append(errs, fmt.Errorf("question %q rule %d: branch target %q does not exist",
					q.ID, j, rule.NextQuestionID))
			case target <= i:
				errs = append(errs, fmt.Errorf("question %q rule %d: branch target %q is not after the question",
					q.ID, j, rule.NextQuestionID))
			}
		}
	}

	return errors.Join(errs...)
}
