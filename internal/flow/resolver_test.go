package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/model"
)

// letters builds a catalog a..e where a jumps to d when a == "enterprise".
func letters(t *testing.T) *catalog.Catalog {
	t.Helper()
	q := func(id string, rules ...model.BranchRule) model.Question {
		return model.Question{ID: id, Type: model.TypeText, Branching: rules}
	}
	c, err := catalog.New("test", []model.Question{
		q("a", model.BranchRule{
			Condition:      model.Condition{QuestionID: "a", Operator: model.OpEquals, Value: "enterprise"},
			NextQuestionID: "d",
		}),
		q("b"),
		q("c"),
		q("d"),
		q("e"),
	})
	require.NoError(t, err)
	return c
}

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func TestResolveEmptyIsDefaultOrder(t *testing.T) {
	for _, c := range []*catalog.Catalog{letters(t), defaultCatalog(t)} {
		got := IDs(Resolve(c, map[string]any{}))
		assert.Equal(t, IDs(c.All()), got)
		assert.Equal(t, got, IDs(Resolve(c, nil)))
	}
}

func TestResolveBranchSkipsIntermediate(t *testing.T) {
	c := letters(t)
	got := IDs(Resolve(c, map[string]any{"a": "enterprise"}))
	assert.Equal(t, []string{"a", "d", "e"}, got)

	got = IDs(Resolve(c, map[string]any{"a": "startup"}))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestResolveIsDeterministic(t *testing.T) {
	c := defaultCatalog(t)
	responses := map[string]any{
		"project_type":      "web-app",
		"has_existing_site": "no",
		"timeline":          "asap",
		"decision_maker":    "yes",
	}
	first := IDs(Resolve(c, responses))
	second := IDs(Resolve(c, responses))
	assert.Equal(t, first, second)
	assert.NotContains(t, first, "existing_site_url")
	assert.NotContains(t, first, "urgency")
	assert.NotContains(t, first, "approval_process")
	assert.Contains(t, first, "company_size")
}

func TestResolveChangedBranchAnswer(t *testing.T) {
	c := defaultCatalog(t)
	responses := map[string]any{
		"project_type":      "website",
		"company_size":      "small",
		"has_existing_site": "yes",
		"existing_site_url": "https://example.com",
	}
	before := IDs(Resolve(c, responses))
	assert.Contains(t, before, "company_size")

	// The respondent goes back and picks enterprise; earlier answers stay in
	// the map but the path no longer visits them.
	responses["project_type"] = "enterprise"
	after := IDs(Resolve(c, responses))
	assert.NotContains(t, after, "company_size")
	assert.NotContains(t, after, "existing_site_url")
	assert.Contains(t, after, "features")

	seen := map[string]bool{}
	for _, id := range after {
		assert.False(t, seen[id], "duplicate question %s", id)
		seen[id] = true
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	c, err := catalog.New("t", []model.Question{
		{ID: "size", Type: model.TypeSlider, Branching: []model.BranchRule{
			{Condition: model.Condition{QuestionID: "size", Operator: model.OpGreaterThan, Value: 5}, NextQuestionID: "big"},
			{Condition: model.Condition{QuestionID: "size", Operator: model.OpGreaterThan, Value: 1}, NextQuestionID: "medium"},
		}},
		{ID: "small", Type: model.TypeText},
		{ID: "medium", Type: model.TypeText},
		{ID: "big", Type: model.TypeText},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"size", "big"}, IDs(Resolve(c, map[string]any{"size": 9})))
	assert.Equal(t, []string{"size", "medium", "big"}, IDs(Resolve(c, map[string]any{"size": 3})))
	assert.Equal(t, []string{"size", "small", "medium", "big"}, IDs(Resolve(c, map[string]any{"size": 1})))
}

func TestSequenceHelpers(t *testing.T) {
	c := letters(t)
	seq := Resolve(c, map[string]any{"a": "enterprise"})

	assert.Equal(t, 1, Position(seq, "d"))
	assert.Equal(t, -1, Position(seq, "b"))
	assert.True(t, Contains(seq, "e"))

	next, ok := NextAfter(seq, "a")
	require.True(t, ok)
	assert.Equal(t, "d", next.ID)
	_, ok = NextAfter(seq, "e")
	assert.False(t, ok)
	_, ok = NextAfter(seq, "b")
	assert.False(t, ok)

	first, ok := FirstUnanswered(seq, map[string]any{"a": "enterprise"})
	require.True(t, ok)
	assert.Equal(t, "d", first.ID)
	_, ok = FirstUnanswered(seq, map[string]any{"a": 1, "d": 1, "e": 1})
	assert.False(t, ok)
}

func TestMissingRequired(t *testing.T) {
	c, err := catalog.New("t", []model.Question{
		{ID: "a", Type: model.TypeText, Required: true},
		{ID: "b", Type: model.TypeText},
		{ID: "c", Type: model.TypeText, Required: true},
	})
	require.NoError(t, err)
	seq := Resolve(c, nil)

	missing := IDs(MissingRequired(seq, map[string]any{"a": "x", "c": "  "}))
	assert.Equal(t, []string{"c"}, missing)
	assert.Empty(t, MissingRequired(seq, map[string]any{"a": "x", "c": "y"}))
}
