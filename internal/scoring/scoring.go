// Package scoring turns a set of answers into a lead score.
//
// Every answered question with a metadata category contributes
// round(raw × scoreWeight) points to that category, where raw depends on the
// question type:
//
//	select, card-select, yes-no  the chosen option's score
//	multi-select                 sum of the chosen options' scores
//	slider                       the value clamped into [min, max]
//	text                         1 when non-empty
//	textarea                     1 when non-empty, 2 from 100 characters
//	file-upload                  1 when at least one file is attached
//
// Contributions inside a category add up and saturate at the category
// ceiling. Total is the sum of the capped categories.
package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"unicode/utf8"

	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/model"
)

// MaxTotal is the highest possible total score.
const MaxTotal = 100

var ceilings = map[model.Category]int{
	model.CategoryBudget:     35,
	model.CategoryTimeline:   25,
	model.CategoryAuthority:  15,
	model.CategoryComplexity: 15,
	model.CategoryEngagement: 10,
}

// longTextRunes is the length from which a textarea answer earns a bonus point.
const longTextRunes = 100

// Ceiling returns the maximum score of a category, or 0 for unknown ones.
func Ceiling(c model.Category) int {
	return ceilings[c]
}

// TemperatureFor classifies a total score. Lower bounds are inclusive.
func TemperatureFor(total int) model.Temperature {
	switch {
	case total >= 80:
		return model.TemperatureHot
	case total >= 60:
		return model.TemperatureWarm
	case total >= 40:
		return model.TemperatureQualified
	case total >= 20:
		return model.TemperatureCool
	}
	return model.TemperatureEarly
}

// Anomaly is an answer the scorer could not use.
type Anomaly struct {
	QuestionID string `json:"questionId"`
	Reason     string `json:"reason"`
}

// Calculate scores the responses against the catalog. Unknown questions and
// malformed values are ignored.
func Calculate(cat *catalog.Catalog, responses map[string]any) model.ScoreBreakdown {
	b, anomalies := Analyze(cat, responses)
	for _, a := range anomalies {
		slog.Debug("scoring skipped answer", "question", a.QuestionID, "reason", a.Reason)
	}
	return b
}

// Analyze is Calculate that also reports the answers it skipped.
func Analyze(cat *catalog.Catalog, responses map[string]any) (model.ScoreBreakdown, []Anomaly) {
	var anomalies []Anomaly
	sums := map[model.Category]int{}

	// Walk the catalog, not the map, so anomalies come out in a stable order.
	for _, q := range cat.All() {
		value, ok := responses[q.ID]
		if !ok || q.Metadata.Category == "" {
			continue
		}
		if _, known := ceilings[q.Metadata.Category]; !known {
			anomalies = append(anomalies, Anomaly{q.ID, fmt.Sprintf("unknown category %q", q.Metadata.Category)})
			continue
		}
		raw, err := rawPoints(q, value)
		if err != nil {
			anomalies = append(anomalies, Anomaly{q.ID, err.Error()})
			if raw == 0 {
				continue
			}
		}
		weight := q.Metadata.ScoreWeight
		if weight == 0 {
			weight = 1
		}
		sums[q.Metadata.Category] = addCapped(sums[q.Metadata.Category], raw*weight, ceilings[q.Metadata.Category])
	}
	for id := range responses {
		if !cat.Has(id) {
			anomalies = append(anomalies, Anomaly{id, "unknown question"})
		}
	}

	var b model.ScoreBreakdown
	b.Budget = sums[model.CategoryBudget]
	b.Timeline = sums[model.CategoryTimeline]
	b.Authority = sums[model.CategoryAuthority]
	b.Complexity = sums[model.CategoryComplexity]
	b.Engagement = sums[model.CategoryEngagement]
	b.Total = min(b.Budget+b.Timeline+b.Authority+b.Complexity+b.Engagement, MaxTotal)
	b.Temperature = TemperatureFor(b.Total)
	return b, anomalies
}

// addCapped adds one weighted contribution to a category sum. The
// contribution is clamped to [0, ceiling] in float space before rounding, so
// huge or non-finite values can neither overflow nor push the sum past the
// ceiling.
func addCapped(sum int, contribution float64, ceiling int) int {
	if !(contribution > 0) {
		return sum
	}
	pts := int(math.Round(math.Min(contribution, float64(ceiling))))
	return min(sum+pts, ceiling)
}

// rawPoints maps one answer to unweighted points. A non-nil error with
// non-zero points means the answer was partly usable.
func rawPoints(q model.Question, value any) (float64, error) {
	if model.IsEmpty(value) {
		return 0, nil
	}
	switch q.Type {
	case model.TypeSelect, model.TypeCardSelect, model.TypeYesNo:
		if model.IsList(value) {
			return 0, fmt.Errorf("expected a single choice")
		}
		s, ok := model.AsString(value)
		if !ok {
			return 0, fmt.Errorf("malformed value %v", value)
		}
		opt, ok := q.Option(s)
		if !ok {
			return 0, fmt.Errorf("unknown option %q", s)
		}
		return float64(opt.Score), nil

	case model.TypeMultiSelect:
		list, ok := model.AsStrings(value)
		if !ok {
			return 0, fmt.Errorf("malformed value %v", value)
		}
		var total float64
		var unknown []string
		seen := map[string]bool{}
		for _, s := range list {
			if seen[s] {
				continue
			}
			seen[s] = true
			opt, ok := q.Option(s)
			if !ok {
				unknown = append(unknown, s)
				continue
			}
			total += float64(opt.Score)
		}
		if len(unknown) > 0 {
			return total, fmt.Errorf("unknown options %q", unknown)
		}
		return total, nil

	case model.TypeSlider:
		n, ok := model.AsNumber(value)
		if !ok {
			return 0, fmt.Errorf("malformed value %v", value)
		}
		if v := q.Validation; v != nil {
			if v.Min != nil {
				n = math.Max(n, *v.Min)
			}
			if v.Max != nil {
				n = math.Min(n, *v.Max)
			}
		}
		return n, nil

	case model.TypeText, model.TypeTextarea:
		s, ok := value.(string)
		if !ok {
			return 0, fmt.Errorf("expected text")
		}
		if q.Type == model.TypeTextarea && utf8.RuneCountInString(s) >= longTextRunes {
			return 2, nil
		}
		return 1, nil

	case model.TypeFileUpload:
		list, ok := model.AsStrings(value)
		if !ok {
			return 0, fmt.Errorf("malformed value %v", value)
		}
		if len(list) == 0 {
			return 0, nil
		}
		return 1, nil
	}
	return 0, fmt.Errorf("unsupported question type %q", q.Type)
}
