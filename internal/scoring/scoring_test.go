package scoring

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/model"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func sum(b model.ScoreBreakdown) int {
	return b.Budget + b.Timeline + b.Authority + b.Complexity + b.Engagement
}

func TestEmptyIsEarly(t *testing.T) {
	b := Calculate(defaultCatalog(t), map[string]any{})
	assert.Equal(t, 0, b.Total)
	assert.Equal(t, model.TemperatureEarly, b.Temperature)

	b = Calculate(defaultCatalog(t), nil)
	assert.Equal(t, 0, b.Total)
}

func TestFullMarksIsHot(t *testing.T) {
	b := Calculate(defaultCatalog(t), map[string]any{
		"project_type":        "enterprise",
		"company_size":        "large",
		"has_existing_site":   "yes",
		"existing_site_url":   "https://example.com",
		"features":            []any{"auth", "payments", "api", "realtime"},
		"integrations":        []any{"erp"},
		"budget_range":        "100k-plus",
		"timeline":            "1-3-months",
		"urgency":             10,
		"decision_maker":      true,
		"project_description": strings.Repeat("a detailed brief ", 10),
		"referral_source":     "referral",
		"attachments":         []any{"brief.pdf"},
		"contact_email":       "lead@example.com",
	})
	assert.Equal(t, model.ScoreBreakdown{
		Budget:      35,
		Timeline:    25,
		Authority:   15,
		Complexity:  15,
		Engagement:  10,
		Total:       100,
		Temperature: model.TemperatureHot,
	}, b)
}

func TestCategoryAdditiveThenCapped(t *testing.T) {
	c := defaultCatalog(t)

	// 20 (asap) + round(8 × 0.5) = 24, under the ceiling.
	b := Calculate(c, map[string]any{"timeline": "asap", "urgency": 8})
	assert.Equal(t, 24, b.Timeline)

	// 25 + 5 saturates at 25.
	b = Calculate(c, map[string]any{"timeline": "1-3-months", "urgency": 10})
	assert.Equal(t, 25, b.Timeline)

	// Slider values are clamped into their bounds before weighting.
	b = Calculate(c, map[string]any{"urgency": 400})
	assert.Equal(t, 5, b.Timeline)
}

func TestMultiSelectSumsOptions(t *testing.T) {
	b := Calculate(defaultCatalog(t), map[string]any{
		"features": []string{"auth", "payments", "payments"},
	})
	assert.Equal(t, 3, b.Complexity)
}

func TestTextareaLengthBonus(t *testing.T) {
	c := defaultCatalog(t)
	short := Calculate(c, map[string]any{"project_description": "We need a new site soon."})
	long := Calculate(c, map[string]any{"project_description": strings.Repeat("x", 100)})
	assert.Equal(t, 2, short.Engagement)
	assert.Equal(t, 4, long.Engagement)
}

func TestUnknownQuestionIgnored(t *testing.T) {
	c := defaultCatalog(t)
	b, anomalies := Analyze(c, map[string]any{
		"budget_range":  "20k-50k",
		"favourite_pet": "cat",
	})
	assert.Equal(t, 25, b.Budget)
	assert.Equal(t, 25, b.Total)
	assert.Equal(t, []Anomaly{{QuestionID: "favourite_pet", Reason: "unknown question"}}, anomalies)
}

func TestMalformedValueIgnored(t *testing.T) {
	c := defaultCatalog(t)
	responses := map[string]any{
		"budget_range":   map[string]any{"nested": true},
		"timeline":       "yesterday",
		"urgency":        "very",
		"decision_maker": "yes",
		"features":       []any{"auth", "teleport"},
		"attachments":    42,
	}
	var b model.ScoreBreakdown
	assert.NotPanics(t, func() { b = Calculate(c, responses) })
	assert.Equal(t, 0, b.Budget)
	assert.Equal(t, 0, b.Timeline)
	assert.Equal(t, 10, b.Authority)
	assert.Equal(t, 1, b.Complexity, "known options still count")
	assert.Equal(t, 0, b.Engagement)

	_, anomalies := Analyze(c, responses)
	var ids []string
	for _, a := range anomalies {
		ids = append(ids, a.QuestionID)
	}
	assert.ElementsMatch(t, []string{"budget_range", "timeline", "urgency", "features", "attachments"}, ids)
}

func TestTemperatureThresholds(t *testing.T) {
	tests := []struct {
		total int
		want  model.Temperature
	}{
		{0, model.TemperatureEarly},
		{19, model.TemperatureEarly},
		{20, model.TemperatureCool},
		{39, model.TemperatureCool},
		{40, model.TemperatureQualified},
		{59, model.TemperatureQualified},
		{60, model.TemperatureWarm},
		{79, model.TemperatureWarm},
		{80, model.TemperatureHot},
		{100, model.TemperatureHot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TemperatureFor(tt.total), "total %d", tt.total)
	}
}

func TestTemperatureMonotonic(t *testing.T) {
	prev := TemperatureFor(0).Rank()
	for total := 1; total <= MaxTotal; total++ {
		rank := TemperatureFor(total).Rank()
		assert.GreaterOrEqual(t, rank, prev, "total %d", total)
		prev = rank
	}
}

// randomAnswer picks a plausible, sometimes malformed, answer for q.
func randomAnswer(r *rand.Rand, q model.Question) any {
	if r.IntN(10) == 0 {
		return []any{map[string]any{"junk": r.Int()}}
	}
	switch q.Type {
	case model.TypeMultiSelect:
		var picked []any
		for _, o := range q.Options {
			if r.IntN(2) == 0 {
				picked = append(picked, o.Value)
			}
		}
		return picked
	case model.TypeSlider:
		return r.Float64()*30 - 10
	case model.TypeText, model.TypeTextarea:
		return strings.Repeat("z", r.IntN(150))
	case model.TypeFileUpload:
		return []any{"a.pdf"}
	}
	if len(q.Options) == 0 {
		return "x"
	}
	return q.Options[r.IntN(len(q.Options))].Value
}

// randomCatalog builds a valid catalog with unbounded sliders, large weights
// and large option scores.
func randomCatalog(t *testing.T, r *rand.Rand) *catalog.Catalog {
	t.Helper()
	types := []model.QuestionType{
		model.TypeSlider, model.TypeSelect, model.TypeMultiSelect, model.TypeTextarea,
	}
	weights := []float64{0, 0.5, 1, 7, 1e6, 1e300}
	n := 1 + r.IntN(8)
	questions := make([]model.Question, 0, n)
	for i := range n {
		q := model.Question{
			ID:   fmt.Sprintf("q%d", i),
			Type: types[r.IntN(len(types))],
			Metadata: model.QuestionMetadata{
				Category:    model.Categories[r.IntN(len(model.Categories))],
				ScoreWeight: weights[r.IntN(len(weights))],
			},
		}
		if q.Type.IsChoice() {
			for j := range 1 + r.IntN(4) {
				q.Options = append(q.Options, model.Option{
					Value: fmt.Sprintf("o%d", j),
					Score: r.IntN(3) * math.MaxInt32,
				})
			}
		}
		questions = append(questions, q)
	}
	c, err := catalog.New("generated", questions)
	require.NoError(t, err)
	return c
}

func hugeAnswer(r *rand.Rand, q model.Question) any {
	if q.Type == model.TypeSlider {
		values := []float64{6e18, -6e18, 1e300, math.MaxInt64, r.Float64() * 1e20}
		return values[r.IntN(len(values))]
	}
	return randomAnswer(r, q)
}

func requireInvariants(t *testing.T, c *catalog.Catalog, responses map[string]any) {
	t.Helper()
	b := Calculate(c, responses)
	require.Equal(t, sum(b), b.Total)
	require.GreaterOrEqual(t, b.Total, 0)
	require.LessOrEqual(t, b.Total, MaxTotal)
	for _, cat := range model.Categories {
		require.GreaterOrEqual(t, b.Get(cat), 0, "category %s", cat)
		require.LessOrEqual(t, b.Get(cat), Ceiling(cat), "category %s", cat)
	}
	require.Equal(t, TemperatureFor(b.Total), b.Temperature)
	require.Equal(t, b, Calculate(c, responses), "scoring must be deterministic")
}

func TestScoreInvariants(t *testing.T) {
	c := defaultCatalog(t)
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		responses := map[string]any{}
		for _, q := range c.All() {
			if r.IntN(3) > 0 {
				responses[q.ID] = randomAnswer(r, q)
			}
		}
		if r.IntN(4) == 0 {
			responses["not_in_catalog"] = r.Int()
		}
		requireInvariants(t, c, responses)
	}
}

func TestScoreInvariantsGeneratedCatalogs(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 300; i++ {
		c := randomCatalog(t, r)
		responses := map[string]any{}
		for _, q := range c.All() {
			if r.IntN(4) > 0 {
				responses[q.ID] = hugeAnswer(r, q)
			}
		}
		requireInvariants(t, c, responses)
	}
}

func TestUnboundedSlidersSaturate(t *testing.T) {
	slider := func(id string) model.Question {
		return model.Question{
			ID:       id,
			Type:     model.TypeSlider,
			Metadata: model.QuestionMetadata{Category: model.CategoryBudget},
		}
	}
	c, err := catalog.New("custom", []model.Question{slider("a"), slider("b")})
	require.NoError(t, err)

	b := Calculate(c, map[string]any{"a": 6e18, "b": 6e18})
	assert.Equal(t, 35, b.Budget)
	assert.Equal(t, 35, b.Total)
	assert.Equal(t, model.TemperatureCool, b.Temperature)

	b = Calculate(c, map[string]any{"a": -6e18, "b": 3})
	assert.Equal(t, 3, b.Budget)
}

func TestHugeWeightSaturates(t *testing.T) {
	c, err := catalog.New("custom", []model.Question{{
		ID:   "size",
		Type: model.TypeSelect,
		Options: []model.Option{
			{Value: "big", Score: math.MaxInt32},
		},
		Metadata: model.QuestionMetadata{Category: model.CategoryAuthority, ScoreWeight: 1e300},
	}})
	require.NoError(t, err)

	b := Calculate(c, map[string]any{"size": "big"})
	assert.Equal(t, 15, b.Authority)
	assert.Equal(t, 15, b.Total)
}

func TestCeilingsSumToMax(t *testing.T) {
	total := 0
	for _, c := range model.Categories {
		total += Ceiling(c)
	}
	assert.Equal(t, MaxTotal, total)
	assert.Zero(t, Ceiling("mood"))
}
