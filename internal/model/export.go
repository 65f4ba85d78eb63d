package model

import "time"

// LeadExport is the top-level JSON structure for lead export.
type LeadExport struct {
	ExportedAt     time.Time    `json:"exported_at"`
	CatalogVersion string       `json:"catalog_version"`
	NumLeads       int          `json:"num_leads"`
	Leads          []LeadResult `json:"leads"`
}

// LeadResult holds one respondent's session data for export.
type LeadResult struct {
	SessionID   string          `json:"session_id"`
	UserID      string          `json:"user_id"`
	Status      SessionStatus   `json:"status"`
	Version     string          `json:"version"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Answers     []AnswerResult  `json:"answers"`
	Score       *ScoreBreakdown `json:"score,omitempty"`
}

// AnswerResult holds per-question data for export.
type AnswerResult struct {
	QuestionID string    `json:"question_id"`
	Title      string    `json:"title,omitempty"`
	Category   Category  `json:"category,omitempty"`
	Value      string    `json:"value"`
	AnsweredAt time.Time `json:"answered_at"`
	TimeSpent  float64   `json:"time_spent"`
}

// QuestionLookup resolves question ids to their catalog entries.
type QuestionLookup interface {
	Get(id string) (Question, bool)
}

// NewLeadResult flattens a session for export. Questions unknown to the
// lookup are exported with their id only.
func NewLeadResult(s Session, questions QuestionLookup) LeadResult {
	lr := LeadResult{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Status:      s.Status,
		Version:     s.Version,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Answers:     make([]AnswerResult, 0, len(s.Responses)),
		Score:       s.ScoreBreakdown,
	}
	for _, r := range s.Responses {
		ar := AnswerResult{
			QuestionID: r.QuestionID,
			Value:      FormatValue(r.Value),
			AnsweredAt: r.AnsweredAt,
			TimeSpent:  r.TimeSpent,
		}
		if q, ok := questions.Get(r.QuestionID); ok {
			ar.Title = q.Title
			ar.Category = q.Metadata.Category
		}
		lr.Answers = append(lr.Answers, ar)
	}
	return lr
}
