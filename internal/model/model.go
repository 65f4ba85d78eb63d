package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned by session stores when no session exists for a user.
var ErrSessionNotFound = errors.New("session not found")

// QuestionType is the input widget a question is answered with.
type QuestionType string

const (
	TypeText        QuestionType = "text"
	TypeTextarea    QuestionType = "textarea"
	TypeSelect      QuestionType = "select"
	TypeMultiSelect QuestionType = "multi-select"
	TypeCardSelect  QuestionType = "card-select"
	TypeSlider      QuestionType = "slider"
	TypeYesNo       QuestionType = "yes-no"
	TypeFileUpload  QuestionType = "file-upload"
)

var validTypes = map[QuestionType]bool{
	TypeText:        true,
	TypeTextarea:    true,
	TypeSelect:      true,
	TypeMultiSelect: true,
	TypeCardSelect:  true,
	TypeSlider:      true,
	TypeYesNo:       true,
	TypeFileUpload:  true,
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return validTypes[t]
}

// IsChoice reports whether answers must be picked from the question's options.
func (t QuestionType) IsChoice() bool {
	switch t {
	case TypeSelect, TypeMultiSelect, TypeCardSelect, TypeYesNo:
		return true
	}
	return false
}

// Operator is a branch condition operator.
type Operator int

const (
	OpEquals Operator = iota + 1
	OpContains
	OpGreaterThan
	OpLessThan
)

var operatorNames = map[Operator]string{
	OpEquals:      "equals",
	OpContains:    "contains",
	OpGreaterThan: "greater_than",
	OpLessThan:    "less_than",
}

// ParseOperator maps an operator name to its Operator.
func ParseOperator(s string) (Operator, error) {
	for op, name := range operatorNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	name, ok := operatorNames[o]
	if !ok {
		return nil, fmt.Errorf("unknown operator %d", int(o))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names are rejected.
func (o *Operator) UnmarshalText(b []byte) error {
	op, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Category is a lead scoring bucket.
type Category string

const (
	CategoryBudget     Category = "budget"
	CategoryTimeline   Category = "timeline"
	CategoryAuthority  Category = "authority"
	CategoryComplexity Category = "complexity"
	CategoryEngagement Category = "engagement"
)

// Categories lists every scoring category in display order.
var Categories = []Category{
	CategoryBudget,
	CategoryTimeline,
	CategoryAuthority,
	CategoryComplexity,
	CategoryEngagement,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Option is one choice of a choice-based question.
type Option struct {
	Value       string `json:"value" yaml:"value"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Score       int    `json:"score,omitempty" yaml:"score,omitempty"`
}

// Validation holds optional answer constraints.
type Validation struct {
	Min           *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern       string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	CustomMessage string   `json:"customMessage,omitempty" yaml:"customMessage,omitempty"`
}

// Condition compares the answer to QuestionID against Value.
type Condition struct {
	QuestionID string   `json:"questionId" yaml:"questionId"`
	Operator   Operator `json:"operator" yaml:"operator"`
	Value      any      `json:"value" yaml:"value"`
}

// BranchRule redirects the flow to NextQuestionID when Condition holds.
type BranchRule struct {
	Condition      Condition `json:"condition" yaml:"condition"`
	NextQuestionID string    `json:"nextQuestionId" yaml:"nextQuestionId"`
}

// QuestionMetadata maps a question onto a scoring bucket.
type QuestionMetadata struct {
	Category    Category `json:"category,omitempty" yaml:"category,omitempty"`
	ScoreWeight float64  `json:"scoreWeight,omitempty" yaml:"scoreWeight,omitempty"`
}

// Question is a node in the questionnaire catalog.
type Question struct {
	ID          string           `json:"id" yaml:"id"`
	Type        QuestionType     `json:"type" yaml:"type"`
	Title       string           `json:"title" yaml:"title"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool             `json:"required" yaml:"required"`
	Options     []Option         `json:"options,omitempty" yaml:"options,omitempty"`
	Validation  *Validation      `json:"validation,omitempty" yaml:"validation,omitempty"`
	Branching   []BranchRule     `json:"branching,omitempty" yaml:"branching,omitempty"`
	Metadata    QuestionMetadata `json:"metadata" yaml:"metadata"`
}

// Option returns the option with the given value.
func (q Question) Option(value string) (Option, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// Response is one answered question.
type Response struct {
	QuestionID string    `json:"questionId" bson:"questionId"`
	Value      any       `json:"value" bson:"value"`
	AnsweredAt time.Time `json:"answeredAt" bson:"answeredAt"`
	TimeSpent  float64   `json:"timeSpent" bson:"timeSpent"` // seconds
}

// SessionStatus represents the status of a questionnaire session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Temperature is the coarse bucket a lead score falls into.
type Temperature string

const (
	TemperatureHot       Temperature = "hot"
	TemperatureWarm      Temperature = "warm"
	TemperatureQualified Temperature = "qualified"
	TemperatureCool      Temperature = "cool"
	TemperatureEarly     Temperature = "early"
)

// Rank orders temperatures from early (0) to hot (4).
func (t Temperature) Rank() int {
	switch t {
	case TemperatureHot:
		return 4
	case TemperatureWarm:
		return 3
	case TemperatureQualified:
		return 2
	case TemperatureCool:
		return 1
	}
	return 0
}

// ScoreBreakdown is the output of the scoring engine.
type ScoreBreakdown struct {
	Budget      int         `json:"budget" bson:"budget"`
	Timeline    int         `json:"timeline" bson:"timeline"`
	Authority   int         `json:"authority" bson:"authority"`
	Complexity  int         `json:"complexity" bson:"complexity"`
	Engagement  int         `json:"engagement" bson:"engagement"`
	Total       int         `json:"total" bson:"total"`
	Temperature Temperature `json:"temperature" bson:"temperature"`
}

// Get returns the score of one category.
func (b ScoreBreakdown) Get(c Category) int {
	switch c {
	case CategoryBudget:
		return b.Budget
	case CategoryTimeline:
		return b.Timeline
	case CategoryAuthority:
		return b.Authority
	case CategoryComplexity:
		return b.Complexity
	case CategoryEngagement:
		return b.Engagement
	}
	return 0
}

// Session is one respondent's questionnaire attempt.
type Session struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Status          SessionStatus   `json:"status"`
	Version         string          `json:"version"`
	StartedAt       time.Time       `json:"startedAt"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	LastQuestionID  string          `json:"lastQuestionId,omitempty"`
	QuestionShownAt *time.Time      `json:"questionShownAt,omitempty"`
	Responses       []Response      `json:"responses"`
	Score           *int            `json:"score,omitempty"`
	ScoreBreakdown  *ScoreBreakdown `json:"scoreBreakdown,omitempty"`
}

// Temperature returns the session's temperature, or "" when unscored.
func (s Session) Temperature() Temperature {
	if s.ScoreBreakdown == nil {
		return ""
	}
	return s.ScoreBreakdown.Temperature
}

// SessionFilter narrows lead listings. Zero values mean no filtering.
type SessionFilter struct {
	Status      SessionStatus
	Temperature Temperature
	Limit       int
}

// ServiceConfig holds runtime parameters set via CLI flags.
type ServiceConfig struct {
	AdminUser    string
	AdminHash    string // bcrypt hash of the admin password
	TokenSecret  string
	TokenTTL     time.Duration
	StaleAfter   time.Duration // default age for the stale-session report
	DefaultLang  string
	LLMEnabled   bool
	BriefVariant string
}

type userCtxKey struct{}

// ContextWithUserID stores the authenticated respondent id in the request context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey{}, userID)
}

// UserIDFromContext retrieves the authenticated respondent id, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userCtxKey{}).(string)
	return id
}
