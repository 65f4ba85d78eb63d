// Package llm writes sales briefs for leads using an OpenAI-compatible API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/qualifier/internal/catalog"
	"github.com/pavelanni/qualifier/internal/flow"
	"github.com/pavelanni/qualifier/internal/llm/prompts"
	"github.com/pavelanni/qualifier/internal/model"
	"github.com/pavelanni/qualifier/internal/responses"
	"github.com/pavelanni/qualifier/internal/scoring"
)

// Brief is the model's summary of one lead.
type Brief struct {
	Summary       string   `json:"summary"`
	TalkingPoints []string `json:"talkingPoints"`
	Risks         []string `json:"risks"`
	NextStep      string   `json:"nextStep"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client. Prompt templates must be loaded with
// prompts.Load before briefs are requested.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// BriefLead asks the model for a sales brief on s. Unscored sessions are
// described with a provisional score of their on-path answers.
func (c *Client) BriefLead(ctx context.Context, variant prompts.Variant, s model.Session, cat *catalog.Catalog) (*Brief, error) {
	prompt, err := prompts.BuildBriefPrompt(variant, briefData(s, cat))
	if err != nil {
		return nil, fmt.Errorf("build brief prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "user", s.UserID, "raw", raw)

	var brief Brief
	if err := json.Unmarshal([]byte(raw), &brief); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if strings.TrimSpace(brief.Summary) == "" {
		return nil, fmt.Errorf("LLM response has no summary (raw: %s)", raw)
	}
	return &brief, nil
}

func briefData(s model.Session, cat *catalog.Catalog) prompts.BriefData {
	acc := responses.FromList(s.Responses)
	seq := flow.Resolve(cat, acc.Values())
	onPath := acc.Restrict(flow.IDs(seq)).Values()

	var b model.ScoreBreakdown
	if s.ScoreBreakdown != nil {
		b = *s.ScoreBreakdown
	} else {
		b = scoring.Calculate(cat, onPath)
	}

	data := prompts.BriefData{
		Total:       b.Total,
		Temperature: string(b.Temperature),
	}
	for _, c := range model.Categories {
		data.Categories = append(data.Categories, prompts.CategoryLine{
			Name:  string(c),
			Score: b.Get(c),
			Max:   scoring.Ceiling(c),
		})
	}
	for _, q := range seq {
		v, ok := onPath[q.ID]
		if !ok || model.IsEmpty(v) {
			data.Unanswered = append(data.Unanswered, q.Title)
			continue
		}
		data.Answers = append(data.Answers, prompts.AnswerLine{
			Title:    q.Title,
			Category: string(q.Metadata.Category),
			Value:    answerText(q, v),
		})
	}
	return data
}

// answerText renders choice answers by their labels.
func answerText(q model.Question, v any) string {
	if !q.Type.IsChoice() {
		return model.FormatValue(v)
	}
	values, ok := model.AsStrings(v)
	if !ok {
		if s, isStr := model.AsString(v); isStr {
			values = []string{s}
		} else {
			return model.FormatValue(v)
		}
	}
	labels := make([]string, 0, len(values))
	for _, val := range values {
		if o, found := q.Option(val); found && o.Label != "" {
			labels = append(labels, o.Label)
		} else {
			labels = append(labels, val)
		}
	}
	return strings.Join(labels, ", ")
}
